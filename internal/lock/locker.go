// Package lock implements the cross-process named mutex described in spec
// §4.2: a file-backed lock with a timeout and "abandoned lock" recovery
// semantics, plus the shard/coarse lock layering the Cache Engine uses to
// serialize manifest and artifact access. It is grounded on the teacher
// codebase's pkg/filesystem/locking package (an flock(2)-based Locker) and
// pkg/state/lock.go (the tracker lock's timeout conventions), generalized
// with a polling-based timeout since flock itself has no native timeout.
package lock

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
)

// pollInterval is how often a blocked Acquire retries a non-blocking lock
// attempt while waiting for the timeout or context to expire.
const pollInterval = 10 * time.Millisecond

// ErrTimeout is returned by Acquire when the lock could not be obtained
// before the timeout (or context) expired.
var ErrTimeout = errors.New("lock acquisition timed out")

// Result describes the outcome of a successful Acquire call.
type Result int

const (
	// Acquired indicates the lock was obtained without contention.
	Acquired Result = iota
	// Recovered indicates the lock was held by a process that is no longer
	// running; since on-disk state under every lock in this system is always
	// either pre-commit temporary or fully committed (never torn), this is
	// treated identically to a clean acquisition. Acquire never reports it:
	// on both POSIX and Windows the OS releases a file lock when its holding
	// process exits, so an abandoned lock is simply reported as Acquired.
	// The value is kept for parity with spec §4.2's three-way outcome.
	Recovered
)

// Locker is a named, file-backed mutex. A single Locker may only be held by
// one goroutine at a time within a process; cross-process exclusion is
// provided by the underlying OS file lock.
type Locker struct {
	file *os.File
	path string
}

// New creates a lock with the file at path, creating it if necessary. The
// returned Locker is unlocked.
func New(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	return &Locker{file: file, path: path}, nil
}

// Acquire attempts to obtain the lock, blocking (subject to ctx's deadline)
// until it succeeds or the context is done. A zero-value ctx.Deadline (i.e.
// context.Background()) blocks indefinitely, matching flock(2)'s blocking
// mode; callers wanting the spec's default per-store timeout should use
// context.WithTimeout.
func (l *Locker) Acquire(ctx context.Context) (Result, error) {
	for {
		if err := l.tryLock(); err == nil {
			return Acquired, nil
		} else if !errors.Is(err, errWouldBlock) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ErrTimeout
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock.
func (l *Locker) Unlock() error {
	return l.unlock()
}

// Close releases the lock (if held) and closes the underlying file.
func (l *Locker) Close() error {
	_ = l.unlock()
	return l.file.Close()
}

// Path returns the path to the backing lock file.
func (l *Locker) Path() string {
	return l.path
}

// AcquireWithTimeout is a convenience wrapper around Acquire using a plain
// duration instead of a context, matching the spec's Acquire(timeout_ms)
// signature (§4.2).
func AcquireWithTimeout(path string, permissions os.FileMode, timeout time.Duration) (*Locker, Result, error) {
	locker, err := New(path, permissions)
	if err != nil {
		return nil, 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := locker.Acquire(ctx)
	if err != nil {
		locker.file.Close()
		return nil, 0, err
	}
	return locker, result, nil
}
