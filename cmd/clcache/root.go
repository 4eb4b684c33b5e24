package main

import (
	"github.com/spf13/cobra"
)

// rootCommand is only ever reached for one of the administrative modes
// (spec §6: "Administrative modes (mutually exclusive) ..."); direct
// compiler invocation is intercepted in main before Cobra ever sees the
// arguments, since an arbitrary compiler path can't be registered as a
// subcommand.
var rootCommand = &cobra.Command{
	Use:   "clcache",
	Short: "clcache is a fingerprint-based compiler cache for cl.exe and moc.exe.",
}

func init() {
	// Disable Cobra's alphabetical command sorting, matching the teacher's
	// own root command setup (cmd/mutagen/main.go).
	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		printStatsCommand,
		cleanCommand,
		clearCommand,
		resetStatsCommand,
		setMaxSizeBytesCommand,
		setMaxSizeGBCommand,
		runHashServerCommand,
	)
}
