// Package cmd provides small helpers shared by cmd/clcache's subcommands,
// grounded on the teacher codebase's root-level cmd/error.go: consistent
// warning/error/fatal formatting and a Mainify adapter so Cobra Run
// functions can return an error and still participate in deferred cleanup.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and terminates the
// process with exit code 1, per spec §6 ("1 on administrative error").
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// Mainify wraps a Cobra entry point that returns an error, converting it
// into the standard Run signature while still invoking Fatal on failure.
// This lets entry points rely on defer-based cleanup (e.g. flushing stats),
// which plain os.Exit calls inside the Run function itself would skip.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
