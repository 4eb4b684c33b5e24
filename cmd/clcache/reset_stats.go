package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clcache-go/clcache/internal/cmd"
	"github.com/clcache-go/clcache/internal/config"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/stats"
)

func resetStatsMain(command *cobra.Command, arguments []string) error {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(env.LogLevel)

	store := stats.Store(env.Root, logger)
	current, _, err := store.Load()
	if err != nil {
		return err
	}

	// Hit/miss counters reset to zero, but entry count and total size are
	// preserved since they describe what's actually on disk, not activity
	// history, per spec §4.10 ("persistent size/entry counters are reset to
	// the post-cleanup totals" — outside of a cleanup, the current on-disk
	// totals are the correct baseline).
	reset := stats.Counters{
		Entries:     current.Entries,
		TotalBytes:  current.TotalBytes,
		MissReasons: make(map[stats.MissReason]int64),
	}
	if err := store.Save(reset); err != nil {
		return err
	}

	fmt.Println("Statistics reset.")
	return nil
}

var resetStatsCommand = &cobra.Command{
	Use:   "reset-stats",
	Short: "Reset cache hit/miss counters without removing any entries",
	Run:   cmd.Mainify(resetStatsMain),
}
