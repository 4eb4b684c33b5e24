package main

import (
	"context"
	"path/filepath"

	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/engine"
	"github.com/clcache-go/clcache/internal/eviction"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/stats"
)

// statsFilePath returns the persistent statistics file path under the cache
// root.
func statsFilePath(root string) string {
	return filepath.Join(root, cachedir.StatsFileName)
}

// buildDirStatsFilePath returns the path of the secondary statistics copy
// under the build directory, which Flush merges into the same way as into
// the persistent store, per the supplemented build-directory-copy
// feature (SPEC_FULL.md §12).
func buildDirStatsFilePath(buildDir string) string {
	return filepath.Join(buildDir, cachedir.StatsFileName)
}

// maybeTriggerEviction reads the just-flushed persistent counters and, if
// the tracked total size exceeds maxCacheSize, runs the Eviction Controller
// and replaces the persistent counters with the post-cleanup baseline, per
// spec §4.10 ("implicitly when the tracked cache size exceeds the
// configured maximum").
func maybeTriggerEviction(ctx context.Context, root string, maxCacheSize int64, e *engine.Engine, logger *logging.Logger) {
	store := stats.Store(root, logger)
	counters, _, err := store.Load()
	if err != nil {
		logger.Warnf("unable to read statistics before eviction check: %v", err)
		return
	}
	if counters.TotalBytes <= maxCacheSize {
		return
	}

	logger.Infof("cache size %d exceeds maximum %d, running eviction", counters.TotalBytes, maxCacheSize)
	result, err := eviction.Run(ctx, root, maxCacheSize, e.Manifests, e.Artifacts, logger)
	if err != nil {
		logger.Warnf("eviction failed: %v", err)
		return
	}

	if err := store.Save(eviction.CountersAfter(result)); err != nil {
		logger.Warnf("unable to persist post-eviction statistics: %v", err)
	}
}
