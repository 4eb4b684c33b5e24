package stats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/jsonstore"
	"github.com/clcache-go/clcache/internal/logging"
)

func TestAccumulatorSnapshotReflectsRecordedEvents(t *testing.T) {
	a := NewAccumulator()
	a.Hit()
	a.Hit()
	a.Miss(ReasonHeaderChanged)
	a.Miss(ReasonHeaderChanged)
	a.Miss(ReasonLinking)
	a.EntryCreated(1024)

	snap := a.Snapshot()
	assert.EqualValues(t, 2, snap.CacheHits)
	assert.EqualValues(t, 1, snap.Entries)
	assert.EqualValues(t, 1024, snap.TotalBytes)
	assert.EqualValues(t, 2, snap.MissReasons[ReasonHeaderChanged])
	assert.EqualValues(t, 1, snap.MissReasons[ReasonLinking])
}

func TestMergeAddsCountersAndUnionsMissReasons(t *testing.T) {
	onDisk := Counters{
		CacheHits:   5,
		Entries:     2,
		TotalBytes:  100,
		MissReasons: map[MissReason]int64{ReasonHeaderChanged: 1},
	}
	delta := Counters{
		CacheHits:   1,
		Entries:     1,
		TotalBytes:  50,
		MissReasons: map[MissReason]int64{ReasonHeaderChanged: 2, ReasonLinking: 3},
	}

	merged := Merge(onDisk, delta)
	assert.EqualValues(t, 6, merged.CacheHits)
	assert.EqualValues(t, 3, merged.Entries)
	assert.EqualValues(t, 150, merged.TotalBytes)
	assert.EqualValues(t, 3, merged.MissReasons[ReasonHeaderChanged])
	assert.EqualValues(t, 3, merged.MissReasons[ReasonLinking])
}

func TestReplaceIgnoresOnDiskValue(t *testing.T) {
	onDisk := Counters{CacheHits: 100}
	delta := Counters{CacheHits: 3}
	assert.Equal(t, delta, Replace(onDisk, delta))
}

func TestFlushMergesIntoStoreAndOptionalBuildDirCopy(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.txt")
	buildDirStatsPath := filepath.Join(dir, "build-stats.txt")
	logger := logging.NewLogger(logging.LevelInfo)

	a := NewAccumulator()
	a.Hit()
	a.Miss(ReasonSourceChanged)
	require.NoError(t, a.Flush(statsPath, buildDirStatsPath, logger))

	store := Store(dir, logger)
	persisted, _, err := store.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, persisted.CacheHits)
	assert.EqualValues(t, 1, persisted.MissReasons[ReasonSourceChanged])

	buildStore := jsonstore.New[Counters](buildDirStatsPath, logger)
	buildPersisted, _, err := buildStore.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, buildPersisted.CacheHits)
}

func TestFlushWithoutBuildDirPathSkipsSecondCopy(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.txt")
	logger := logging.NewLogger(logging.LevelInfo)

	a := NewAccumulator()
	a.Hit()
	require.NoError(t, a.Flush(statsPath, "", logger))

	store := Store(dir, logger)
	persisted, _, err := store.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, persisted.CacheHits)
}
