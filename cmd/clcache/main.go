package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/cmd"
)

// administrativeCommands lists every subcommand name that takes over
// argument parsing instead of falling through to direct compiler
// invocation, per spec §6: "Administrative modes (mutually exclusive):
// print-stats, clean, clear, reset-stats, set-max-size-bytes,
// set-max-size-gb, run-hash-server. Otherwise the first positional
// argument is the compiler path".
var administrativeCommands = map[string]bool{
	"print-stats":        true,
	"clean":              true,
	"clear":              true,
	"reset-stats":        true,
	"set-max-size-bytes": true,
	"set-max-size-gb":    true,
	"run-hash-server":    true,
	"help":               true,
	"completion":         true,
}

// errNoCompilerArgument is returned when clcache is invoked with no
// arguments at all, so neither an administrative mode nor a compiler path
// can be determined.
var errNoCompilerArgument = errors.New("no administrative command or compiler path given")

func main() {
	if len(os.Args) > 1 {
		first := os.Args[1]
		if administrativeCommands[first] || first == "-h" || first == "--help" {
			if err := rootCommand.Execute(); err != nil {
				os.Exit(1)
			}
			return
		}
	}

	if len(os.Args) < 2 {
		cmd.Fatal(errNoCompilerArgument)
	}

	os.Exit(runDirectInvocation(os.Args[1], os.Args[2:]))
}
