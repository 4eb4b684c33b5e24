//go:build !plan9

package process

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// ExitCodeForProcessState extracts the process exit code from the process'
// post-exit state, adapted from the teacher codebase's
// pkg/process/exit_code.go.
func ExitCodeForProcessState(state *os.ProcessState) (int, error) {
	waitStatus, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, errors.New("unable to access wait status")
	}
	return waitStatus.ExitStatus(), nil
}
