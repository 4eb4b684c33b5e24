// Package eviction implements the Eviction Controller (spec §4.10):
// size-targeted cleanup over the manifest and artifact stores, triggered
// from the administrative clean/clear commands or implicitly when the
// tracked cache size exceeds the configured maximum. Grounded on the
// teacher codebase's pkg/staging cleanup naming conventions, generalized
// with the 10/90 manifest/artifact budget split and post-cleanup counter
// reset spec §4.10 calls for (mutagen's own staging cleanup has no
// persistent-counter analogue to reconcile, since it never tracks
// aggregate size across runs).
package eviction

import (
	"context"

	"github.com/clcache-go/clcache/internal/artifactstore"
	"github.com/clcache-go/clcache/internal/lock"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/manifeststore"
	"github.com/clcache-go/clcache/internal/stats"
)

// targetFraction is the 10% slack applied to the configured maximum size
// before cleanup, per spec §4.10 ("target-size = 0.9 x max-size").
const targetFraction = 0.9

// manifestBudgetFraction and artifactBudgetFraction split the target size
// between the two stores, per spec §4.10 ("10% of target reserved for
// manifests, 90% for artifacts").
const (
	manifestBudgetFraction = 0.1
	artifactBudgetFraction = 0.9
)

// Result reports what a Run call actually retained, for persisting as the
// post-cleanup counter baseline.
type Result struct {
	RetainedManifestBytes int64
	RetainedArtifactCount int
	RetainedArtifactBytes int64
}

// Run cleans both stores against maxSize, serialized by the whole-cache
// coarse lock (spec §4.2: "a third, coarser lock serializes whole-cache
// cleanup/clear; it acquires every shard lock in order"). Passing
// maxSize == 0 implements the `clear` administrative command (spec §4.10:
// "clear is clean with max-size = 0").
func Run(ctx context.Context, root string, maxSize int64, manifests *manifeststore.Store, artifacts *artifactstore.Store, logger *logging.Logger) (Result, error) {
	lockers, err := lock.AcquireAllShards(ctx, root)
	if err != nil {
		return Result{}, err
	}
	defer lock.ReleaseAll(lockers)

	target := int64(float64(maxSize) * targetFraction)
	manifestBudget := int64(float64(target) * manifestBudgetFraction)
	artifactBudget := int64(float64(target) * artifactBudgetFraction)

	retainedManifestBytes, err := manifests.Clean(manifestBudget)
	if err != nil {
		return Result{}, err
	}

	retainedCount, retainedArtifactBytes, err := artifacts.Clean(artifactBudget)
	if err != nil {
		return Result{}, err
	}

	logger.Infof("cleanup retained %d manifest bytes, %d artifacts (%d bytes)", retainedManifestBytes, retainedCount, retainedArtifactBytes)

	return Result{
		RetainedManifestBytes: retainedManifestBytes,
		RetainedArtifactCount: retainedCount,
		RetainedArtifactBytes: retainedArtifactBytes,
	}, nil
}

// CountersAfter builds the post-cleanup Counters baseline that callers
// persist with the stats store's Save (a plain overwrite), per spec §4.10 ("persistent size/entry counters are reset
// to the post-cleanup totals and in-process deltas are cleared").
func CountersAfter(result Result) stats.Counters {
	return stats.Counters{
		Entries:     int64(result.RetainedArtifactCount),
		TotalBytes:  result.RetainedManifestBytes + result.RetainedArtifactBytes,
		MissReasons: make(map[stats.MissReason]int64),
	}
}
