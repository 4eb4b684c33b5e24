package hashserver

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/canon"
	"github.com/clcache-go/clcache/internal/hasher"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/must"
)

// DefaultIdleTimeout is the default shutdown timeout when no requests have
// been received, per spec §4.4 ("default 180 s").
const DefaultIdleTimeout = 180 * time.Second

// IdleTimeoutEnvVar overrides DefaultIdleTimeout, in minutes. A value of 0
// turns off the idle shutdown, so the server keeps running until it is
// interrupted; clients still start and use it.
const IdleTimeoutEnvVar = "CLCACHE_SERVER_TIMEOUT_MINUTES"

// dirState is the per-directory cache entry: a memoized filename->hash map
// plus the filesystem watcher keeping it fresh.
type dirState struct {
	hashes  map[string]string
	watcher *fsnotify.Watcher
}

// Server is the Hash Server daemon process. Its state is a mapping
// directory -> (filename -> hash), plus one filesystem watcher per
// directory currently holding entries, per spec §4.4.
type Server struct {
	mu   sync.Mutex
	dirs map[string]*dirState

	env    *canon.Environment
	logger *logging.Logger

	idleTimeout time.Duration
	lastActive  time.Time

	listener net.Listener
}

// New creates a Hash Server that will hash paths rewritten through env's
// build-directory source rewrite where applicable.
func New(env *canon.Environment, idleTimeout time.Duration, logger *logging.Logger) *Server {
	return &Server{
		dirs:        make(map[string]*dirState),
		env:         env,
		logger:      logger,
		idleTimeout: idleTimeout,
		lastActive:  monotonicNow(),
	}
}

// monotonicNow exists only so that tests could substitute a fake clock in
// the future; today it is simply time.Now.
func monotonicNow() time.Time { return time.Now() }

// Serve accepts connections on listener until ctx is canceled or the server
// has been idle for longer than its configured timeout, per spec §4.4
// ("the server exits when idle for a configured timeout").
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	defer s.closeAllWatchers()

	connections := make(chan net.Conn)
	acceptErrors := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				acceptErrors <- err
				return
			}
			connections <- conn
		}
	}()

	idleCheck := time.NewTicker(5 * time.Second)
	defer idleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-acceptErrors:
			return errors.Wrap(err, "listener accept failed")
		case conn := <-connections:
			s.mu.Lock()
			s.lastActive = monotonicNow()
			s.mu.Unlock()
			go s.handleConnection(conn)
		case <-idleCheck.C:
			if s.idleTimeout > 0 {
				s.mu.Lock()
				idleFor := monotonicNow().Sub(s.lastActive)
				s.mu.Unlock()
				if idleFor >= s.idleTimeout {
					s.logger.Infof("hash server idle for %s, shutting down", idleFor)
					return nil
				}
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer must.Close(conn, s.logger)

	reader := bufio.NewReader(conn)
	paths, err := readRequest(reader)
	if err != nil {
		return
	}

	hashes := make([]string, len(paths))
	for i, path := range paths {
		h, err := s.hash(path)
		if err != nil {
			must.Succeed(writeErrorResponse(conn, err), "write hash-server error response", s.logger)
			return
		}
		hashes[i] = h
	}
	must.Succeed(writeResponse(conn, hashes), "write hash-server response", s.logger)
}

// hash returns the memoized hash for path, computing and caching it if
// necessary, and lazily starting a filesystem watcher on its directory.
func (s *Server) hash(path string) (string, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	s.mu.Lock()
	state, ok := s.dirs[dir]
	if ok {
		if h, ok := state.hashes[name]; ok {
			s.mu.Unlock()
			return h, nil
		}
	}
	s.mu.Unlock()

	h, err := hasher.HashFile(path, s.env, underBuildDir(s.env, path))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok = s.dirs[dir]
	if !ok {
		state = &dirState{hashes: make(map[string]string)}
		s.dirs[dir] = state
		if watcher, err := s.startWatch(dir); err == nil {
			state.watcher = watcher
		} else {
			s.logger.Warnf("unable to watch %s: %v", dir, err)
		}
	}
	state.hashes[name] = h
	return h, nil
}

// underBuildDir reports whether path lies under the environment's build
// directory, the condition spec §4.3 uses to decide whether to apply the
// source-embedded rewrite before hashing.
func underBuildDir(env *canon.Environment, path string) bool {
	canonical := env.Canonicalize(path)
	prefix := canon.PlaceholderBuildDir
	return len(canonical) >= len(prefix) && canonical[:len(prefix)] == prefix
}

// startWatch begins watching dir for changes, invalidating the affected
// filename's cached hash on any event.
func (s *Server) startWatch(dir string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.invalidate(dir, filepath.Base(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warnf("hash server watch error for %s: %v", dir, err)
			}
		}
	}()

	return watcher, nil
}

// invalidate drops the cached hash for a changed file, and tears down the
// directory's watcher once it holds no more entries, per spec §4.4 ("when a
// directory becomes empty the watcher is stopped and the directory entry
// removed").
func (s *Server) invalidate(dir, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.dirs[dir]
	if !ok {
		return
	}
	delete(state.hashes, name)
	if len(state.hashes) == 0 {
		if state.watcher != nil {
			state.watcher.Close()
		}
		delete(s.dirs, dir)
	}
}

func (s *Server) closeAllWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dir, state := range s.dirs {
		if state.watcher != nil {
			state.watcher.Close()
		}
		delete(s.dirs, dir)
	}
}

// EndpointPath computes the path to the hash server's IPC endpoint record
// inside the given daemon directory.
func EndpointPath(daemonDir string) string {
	return filepath.Join(daemonDir, EndpointBaseName+".sock")
}

// ReadyMarkerPath computes the path to the hash server's ready marker file,
// used by clients performing the double-checked singleton launch (spec
// §4.4: "clients start the server on demand (double-checked singleton via a
// named event)").
func ReadyMarkerPath(daemonDir string) string {
	return filepath.Join(daemonDir, EndpointBaseName+".ready")
}

// LaunchLockPath computes the path to the lock file used to serialize
// concurrent singleton-launch attempts.
func LaunchLockPath(daemonDir string) string {
	return filepath.Join(daemonDir, EndpointBaseName+".launch.lock")
}

// MarkReady creates (or refreshes) the ready marker, signaling to waiting
// clients that the endpoint is accepting connections.
func MarkReady(daemonDir string) error {
	return os.WriteFile(ReadyMarkerPath(daemonDir), []byte{}, 0600)
}

// ClearReady removes the ready marker; called on clean shutdown so the next
// client launch attempt doesn't mistake a stale marker for a live server.
func ClearReady(daemonDir string) {
	os.Remove(ReadyMarkerPath(daemonDir))
}
