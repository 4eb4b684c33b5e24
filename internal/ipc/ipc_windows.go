//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"

	"github.com/Microsoft/go-winio"
	"github.com/google/uuid"

	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/must"
)

// DialContext attempts to establish an IPC connection, timing out if the
// provided context expires. path names a file recording the actual named
// pipe path (see NewListener), matching the indirection the teacher
// codebase uses so that callers can treat both platforms uniformly as
// "a path on disk names the endpoint".
func DialContext(ctx context.Context, path string) (net.Conn, error) {
	pipeNameBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read pipe name: %w", err)
	}
	return winio.DialPipeContext(ctx, string(pipeNameBytes))
}

// listener wraps a named pipe listener to additionally clean up the
// endpoint-name record file on Close.
type listener struct {
	net.Listener
	path   string
	logger *logging.Logger
}

// Close closes the listener and removes the pipe name record.
func (l *listener) Close() error {
	if err := os.Remove(l.path); err != nil {
		must.Close(l.Listener, l.logger)
		return fmt.Errorf("unable to remove pipe name record: %w", err)
	}
	return l.Listener.Close()
}

// NewListener creates a new IPC listener using a named pipe, restricted to
// the current user's SID, recording the generated pipe name at path.
func NewListener(path string) (net.Listener, error) {
	randomUUID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("unable to generate UUID for named pipe: %w", err)
	}
	pipeName := fmt.Sprintf(`\\.\pipe\clcache-hashserver-%s`, randomUUID.String())

	current, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("unable to look up current user: %w", err)
	}
	securityDescriptor := fmt.Sprintf("D:P(A;;GA;;;%s)", current.Uid)

	configuration := &winio.PipeConfig{SecurityDescriptor: securityDescriptor}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("unable to open endpoint: %w", err)
	}

	var successful bool
	defer func() {
		file.Close()
		if !successful {
			os.Remove(path)
		}
	}()

	rawListener, err := winio.ListenPipe(pipeName, configuration)
	if err != nil {
		return nil, err
	}

	if _, err := file.Write([]byte(pipeName)); err != nil {
		return nil, fmt.Errorf("unable to write pipe name: %w", err)
	}

	successful = true
	return &listener{Listener: rawListener, path: path}, nil
}
