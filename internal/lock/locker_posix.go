//go:build !windows

package lock

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// errWouldBlock is returned internally by tryLock when the lock is currently
// held by another process/descriptor.
var errWouldBlock = errors.New("lock would block")

// tryLock attempts a single non-blocking lock acquisition via flock(2)
// through fcntl, matching the teacher's pkg/filesystem/locking Lock(false)
// path. The underlying advisory lock is released automatically by the
// kernel if the holding process dies, which is what gives Acquire its
// "abandoned lock" recovery behavior for free on POSIX.
func (l *Locker) tryLock() error {
	spec := syscall.Flock_t{
		Type:   syscall.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	if err := syscall.FcntlFlock(l.file.Fd(), syscall.F_SETLK, &spec); err != nil {
		if err == syscall.EACCES || err == syscall.EAGAIN {
			return errWouldBlock
		}
		return errors.Wrap(err, "unable to acquire file lock")
	}
	return nil
}

func (l *Locker) unlock() error {
	spec := syscall.Flock_t{
		Type:   syscall.F_UNLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	return syscall.FcntlFlock(l.file.Fd(), syscall.F_SETLK, &spec)
}
