package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestMainifyCallsEntryAndDoesNotExitOnSuccess(t *testing.T) {
	called := false
	wrapped := Mainify(func(*cobra.Command, []string) error {
		called = true
		return nil
	})

	// Entry succeeds, so Mainify must not call os.Exit; reaching this
	// assertion at all is the test.
	wrapped(&cobra.Command{}, nil)
	assert.True(t, called)
}
