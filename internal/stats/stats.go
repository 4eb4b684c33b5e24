// Package stats implements the Stats Accumulator (spec §4.11): in-process
// counters for hits and each miss reason, merged into the persistent store
// at process exit via internal/jsonstore's mtime-aware merge, plus a
// secondary copy written to the build directory so CI can attribute cache
// behavior to a specific build (a supplemented feature — see SPEC_FULL.md
// §12). Grounded on the teacher codebase's pkg/state counters (plain
// struct-of-int64 state published under a lock) combined with
// internal/jsonstore for the persistence half mutagen's own state package
// doesn't need, since mutagen never merges counters across processes.
package stats

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/jsonstore"
	"github.com/clcache-go/clcache/internal/logging"
)

// MissReason enumerates the uncacheable/failure classifications counted
// individually, per spec §4.11.
type MissReason string

const (
	ReasonHeaderChanged      MissReason = "headerChanged"
	ReasonSourceChanged      MissReason = "sourceChanged"
	ReasonCacheFailure       MissReason = "cacheFailure"
	ReasonInvalidArgument    MissReason = "invalidArgument"
	ReasonPreprocessing      MissReason = "preprocessing"
	ReasonLinking            MissReason = "linking"
	ReasonExternalDebugInfo  MissReason = "externalDebugInfo"
	ReasonNoSource           MissReason = "noSource"
	ReasonMultipleSources    MissReason = "multipleSources"
	ReasonPrecompiledHeader  MissReason = "precompiledHeader"
)

// Counters is the persisted/merged JSON shape: cache-hit, every miss
// reason, entry count, and total byte size.
type Counters struct {
	CacheHits   int64                `json:"cacheHits"`
	MissReasons map[MissReason]int64 `json:"missReasons"`
	Entries     int64                `json:"entries"`
	TotalBytes  int64                `json:"totalBytes"`
}

// Merge adds delta's counters into the receiver's copy and returns the
// result, the MergeFunc spec §4.5/§4.11 require for save_combined.
func Merge(onDisk, delta Counters) Counters {
	merged := Counters{
		CacheHits:   onDisk.CacheHits + delta.CacheHits,
		Entries:     onDisk.Entries + delta.Entries,
		TotalBytes:  onDisk.TotalBytes + delta.TotalBytes,
		MissReasons: make(map[MissReason]int64, len(onDisk.MissReasons)+len(delta.MissReasons)),
	}
	for reason, count := range onDisk.MissReasons {
		merged.MissReasons[reason] += count
	}
	for reason, count := range delta.MissReasons {
		merged.MissReasons[reason] += count
	}
	return merged
}

// Replace ignores onDisk entirely and returns delta, a MergeFunc under which
// SaveCombined overwrites rather than merges. The administrative commands
// (reset-stats, clean) overwrite the counters through the store's Save
// instead.
func Replace(_, delta Counters) Counters {
	return delta
}

// Store returns a jsonstore.Store bound to stats.txt under root, for
// administrative commands (print-stats, reset-stats) that read or replace
// the persistent counters directly rather than merging a delta.
func Store(root string, logger *logging.Logger) *jsonstore.Store[Counters] {
	return jsonstore.New[Counters](filepath.Join(root, cachedir.StatsFileName), logger)
}

// Accumulator is the in-process, thread-shared counter set for one
// invocation of the cache engine.
type Accumulator struct {
	mu          sync.Mutex
	missReasons map[MissReason]int64

	cacheHits  int64
	entries    int64
	totalBytes int64
}

// NewAccumulator creates an empty, zeroed accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{missReasons: make(map[MissReason]int64)}
}

// Hit records a cache hit.
func (a *Accumulator) Hit() {
	atomic.AddInt64(&a.cacheHits, 1)
}

// Miss records a miss with the given reason.
func (a *Accumulator) Miss(reason MissReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.missReasons[reason]++
}

// EntryCreated records that a new manifest entry and artifact were
// committed, adding sizeBytes to the total byte delta.
func (a *Accumulator) EntryCreated(sizeBytes int64) {
	atomic.AddInt64(&a.entries, 1)
	atomic.AddInt64(&a.totalBytes, sizeBytes)
}

// Snapshot converts the accumulator's current state into a Counters delta
// suitable for SaveCombined.
func (a *Accumulator) Snapshot() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	reasons := make(map[MissReason]int64, len(a.missReasons))
	for k, v := range a.missReasons {
		reasons[k] = v
	}
	return Counters{
		CacheHits:   atomic.LoadInt64(&a.cacheHits),
		MissReasons: reasons,
		Entries:     atomic.LoadInt64(&a.entries),
		TotalBytes:  atomic.LoadInt64(&a.totalBytes),
	}
}

// Flush merges the accumulator's current state into the persistent store at
// statsPath under lock (spec §4.11: "on process exit the local accumulator
// is merged into the persistent store under lock using the mtime-aware
// merge"), and, if buildDirStatsPath is non-empty, additionally merges the
// same delta into the stats file there for CI attribution per the
// supplemented build-directory-copy feature.
func (a *Accumulator) Flush(statsPath, buildDirStatsPath string, logger *logging.Logger) error {
	delta := a.Snapshot()

	store := jsonstore.New[Counters](statsPath, logger)
	if err := store.SaveCombined(delta, Merge); err != nil {
		return err
	}

	if buildDirStatsPath != "" {
		buildStore := jsonstore.New[Counters](buildDirStatsPath, logger)
		if err := buildStore.SaveCombined(delta, Merge); err != nil {
			logger.Warnf("unable to write build-directory stats copy: %v", err)
		}
	}
	return nil
}
