//go:build windows

// Windows file locking implementation, adapted from the teacher codebase's
// pkg/filesystem/locking/locker_windows.go, which itself derives from
// Go's (BSD-licensed) cmd/builder/filemutex_windows.go.

package lock

import (
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	kernel32     = windows.NewLazySystemDLL("kernel32.dll")
	lockFileEx   = kernel32.NewProc("LockFileEx")
	unlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 2
	lockfileFailImmediately = 1
)

// errWouldBlock is returned internally by tryLock when the lock is currently
// held elsewhere.
var errWouldBlock = errors.New("lock would block")

func callLockFileEx(handle syscall.Handle, flags, reserved, lockLow, lockHigh uint32, overlapped *syscall.Overlapped) error {
	r1, _, e1 := syscall.Syscall6(
		lockFileEx.Addr(), 6,
		uintptr(handle), uintptr(flags), uintptr(reserved),
		uintptr(lockLow), uintptr(lockHigh), uintptr(unsafe.Pointer(overlapped)),
	)
	if r1 == 0 {
		if e1 != 0 {
			return error(e1)
		}
		return syscall.EINVAL
	}
	return nil
}

func callUnlockFileEx(handle syscall.Handle, reserved, lockLow, lockHigh uint32, overlapped *syscall.Overlapped) error {
	r1, _, e1 := syscall.Syscall6(
		unlockFileEx.Addr(), 5,
		uintptr(handle), uintptr(reserved), uintptr(lockLow), uintptr(lockHigh),
		uintptr(unsafe.Pointer(overlapped)), 0,
	)
	if r1 == 0 {
		if e1 != 0 {
			return error(e1)
		}
		return syscall.EINVAL
	}
	return nil
}

func (l *Locker) tryLock() error {
	var ol syscall.Overlapped
	flags := uint32(lockfileExclusiveLock | lockfileFailImmediately)
	if err := callLockFileEx(syscall.Handle(l.file.Fd()), flags, 0, 1, 0, &ol); err != nil {
		if errors.Is(err, syscall.ERROR_LOCK_VIOLATION) {
			return errWouldBlock
		}
		return errors.Wrap(err, "unable to acquire file lock")
	}
	return nil
}

func (l *Locker) unlock() error {
	var ol syscall.Overlapped
	return callUnlockFileEx(syscall.Handle(l.file.Fd()), 0, 1, 0, &ol)
}
