//go:build windows

package process

import "syscall"

// detachedProcess specifies that a process should be created in a
// "detached" state (i.e. not attached to its parent process' console).
const detachedProcess = 0x00000008

// DetachedProcessAttributes returns the process attributes to use for
// starting detached processes, adapted directly from the teacher codebase's
// pkg/process/attributes_windows.go.
func DetachedProcessAttributes() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: detachedProcess,
	}
}
