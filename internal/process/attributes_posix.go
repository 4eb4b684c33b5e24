//go:build !windows && !plan9

package process

import "syscall"

// DetachedProcessAttributes returns the process attributes to use for
// starting detached processes (the hash server daemon, in this codebase),
// adapted directly from the teacher codebase's
// pkg/process/attributes_posix.go.
func DetachedProcessAttributes() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
