package hashserver

import (
	"bufio"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/ipc"
	"github.com/clcache-go/clcache/internal/lock"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/must"
	"github.com/clcache-go/clcache/internal/process"
)

// Client talks to a (possibly not-yet-running) Hash Server daemon. On any
// failure to reach the server it is the caller's responsibility to fall
// back to in-process hashing, per spec §4.4 ("Failure of the pipe call is
// non-fatal ... on any other error falls back silently").
type Client struct {
	daemonDir string
	logger    *logging.Logger
}

// NewClient creates a client for the hash server whose endpoint lives under
// daemonDir.
func NewClient(daemonDir string, logger *logging.Logger) *Client {
	return &Client{daemonDir: daemonDir, logger: logger}
}

// HashFiles asks the hash server to hash the given paths, starting the
// server on demand if it is not already running. It returns an error (never
// partial results) if the server could not be reached or any path failed to
// hash; callers should treat any error here as "fall back to in-process
// hashing" per spec §4.4.
func (c *Client) HashFiles(ctx context.Context, paths []string, selfExecutable string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	if err := c.ensureStarted(ctx, selfExecutable); err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, ipc.RecommendedDialTimeout)
	defer cancel()

	conn, err := ipc.DialContext(dialCtx, EndpointPath(c.daemonDir))
	if err != nil {
		return nil, errors.Wrap(err, "unable to dial hash server")
	}
	defer must.Close(conn, c.logger)

	if err := writeRequest(conn, paths); err != nil {
		return nil, err
	}
	hashes, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}
	if len(hashes) != len(paths) {
		return nil, errors.New("hash server returned a mismatched number of hashes")
	}
	return hashes, nil
}

// ensureStarted implements the double-checked singleton launch described in
// spec §4.4: a ready marker is checked first (fast path); if absent, the
// launch lock is acquired, the marker re-checked, and only then is a
// detached server subprocess spawned.
func (c *Client) ensureStarted(ctx context.Context, selfExecutable string) error {
	if isReady(c.daemonDir) {
		return nil
	}

	locker, _, err := lock.AcquireWithTimeout(LaunchLockPath(c.daemonDir), 0600, 5*time.Second)
	if err != nil {
		return errors.Wrap(err, "unable to acquire hash server launch lock")
	}
	defer locker.Close()

	if isReady(c.daemonDir) {
		return nil
	}

	if err := spawnDetached(selfExecutable, c.daemonDir); err != nil {
		return errors.Wrap(err, "unable to start hash server")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if isReady(c.daemonDir) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	return errors.New("timed out waiting for hash server to become ready")
}

func isReady(daemonDir string) bool {
	_, err := os.Stat(ReadyMarkerPath(daemonDir))
	return err == nil
}

// spawnDetached launches `<selfExecutable> run-hash-server --daemon-dir
// <dir>` as a detached background process, matching the teacher codebase's
// practice of re-exec'ing its own binary for a background daemon role
// (cmd/mutagen/daemon_start.go spawns mutagen-agent the same way).
func spawnDetached(selfExecutable, daemonDir string) error {
	cmd := exec.Command(selfExecutable, "run-hash-server", "--daemon-dir", daemonDir)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = process.DetachedProcessAttributes()
	return cmd.Start()
}

// EndpointExists reports whether the socket/pipe record file is present,
// used by administrative tooling to decide whether there's a server to stop.
func EndpointExists(daemonDir string) bool {
	_, err := os.Stat(EndpointPath(daemonDir))
	return err == nil
}

// DaemonDirName is the subdirectory, under the cache root, where hash server
// endpoint and lock files live.
const DaemonDirName = "daemon"

// DaemonDir returns the daemon subdirectory path for the given cache root.
func DaemonDir(root string) string {
	return filepath.Join(root, DaemonDirName)
}
