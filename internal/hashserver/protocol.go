// Package hashserver implements the Hash Server (spec §4.4): a detached,
// single-instance daemon reached over a local named pipe that memoizes file
// hashes and invalidates them on filesystem-change notifications. Its
// request/response loop structure is grounded on the teacher codebase's
// pkg/ipc dial/listen abstraction and pkg/daemon's singleton/idle-shutdown
// pattern; its cache-invalidation-on-watch-event design generalizes the
// teacher's recursive synchronization watcher (pkg/filesystem/watch*.go) to
// a flat per-directory, per-filename cache instead of a synchronization
// scan cache.
package hashserver

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// protocolUUID and protocolVersion together name the singleton launch lock,
// ready marker, and endpoint file, per spec §6 ("Singleton, launch mutex,
// and ready-event are named after a stable UUID plus a protocol version").
const (
	protocolUUID    = "b9a6b7b0-8e0b-4c1a-9b5a-2f6f0c7d9e11"
	protocolVersion = 1
)

// EndpointBaseName is the stable name used for the hash server's socket /
// named-pipe-record file and its associated singleton lock, inside the
// cache root's daemon subdirectory.
var EndpointBaseName = fmt.Sprintf("hashserver-%s-v%d", protocolUUID, protocolVersion)

// writeRequest writes one or more newline-separated paths terminated by a
// NUL byte, per spec §4.4/§6.
func writeRequest(w io.Writer, paths []string) error {
	payload := strings.Join(paths, "\n")
	if _, err := io.WriteString(w, payload); err != nil {
		return errors.Wrap(err, "unable to write request body")
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "unable to write request terminator")
	}
	return nil
}

// readRequest reads a NUL-terminated, newline-separated path list.
func readRequest(r *bufio.Reader) ([]string, error) {
	raw, err := r.ReadString(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read request")
	}
	raw = strings.TrimSuffix(raw, "\x00")
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, "\n"), nil
}

// writeResponse writes a successful, newline-separated, NUL-terminated hash
// list, matching writeRequest's framing.
func writeResponse(w io.Writer, hashes []string) error {
	payload := strings.Join(hashes, "\n")
	if _, err := io.WriteString(w, payload); err != nil {
		return errors.Wrap(err, "unable to write response body")
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "unable to write response terminator")
	}
	return nil
}

// writeErrorResponse writes a '!'-prefixed, NUL-terminated serialized error
// indicator, per spec §4.4 ("or with a byte `!` followed by a serialized
// error indicator when any path could not be hashed").
func writeErrorResponse(w io.Writer, cause error) error {
	if _, err := w.Write([]byte{'!'}); err != nil {
		return err
	}
	if _, err := io.WriteString(w, cause.Error()); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

// readResponse reads either a hash list or a '!'-prefixed error, returning
// the hash list or a non-nil error reconstructed from the serialized
// message.
func readResponse(r *bufio.Reader) ([]string, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, errors.Wrap(err, "unable to peek response")
	}
	if first[0] == '!' {
		r.ReadByte()
		raw, err := r.ReadString(0)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read error response")
		}
		return nil, errors.New(strings.TrimSuffix(raw, "\x00"))
	}
	raw, err := r.ReadString(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response")
	}
	raw = strings.TrimSuffix(raw, "\x00")
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, "\n"), nil
}
