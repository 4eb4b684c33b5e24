package jsonstore

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/logging"
)

type counters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func addCounters(onDisk, delta counters) counters {
	return counters{
		Hits:   onDisk.Hits + delta.Hits,
		Misses: onDisk.Misses + delta.Misses,
	}
}

func TestLoadOfAbsentFileReturnsZeroValue(t *testing.T) {
	store := New[counters](filepath.Join(t.TempDir(), "stats.txt"), logging.NewLogger(logging.LevelInfo))
	value, modTime, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, value)
	assert.True(t, modTime.IsZero())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := New[counters](filepath.Join(t.TempDir(), "stats.txt"), logging.NewLogger(logging.LevelInfo))
	require.NoError(t, store.Save(counters{Hits: 3, Misses: 1}))

	value, modTime, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, counters{Hits: 3, Misses: 1}, value)
	assert.False(t, modTime.IsZero())
}

func TestSaveCombinedMergesWithOnDiskValue(t *testing.T) {
	store := New[counters](filepath.Join(t.TempDir(), "stats.txt"), logging.NewLogger(logging.LevelInfo))
	require.NoError(t, store.Save(counters{Hits: 5}))
	require.NoError(t, store.SaveCombined(counters{Hits: 2, Misses: 1}, addCounters))

	value, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, counters{Hits: 7, Misses: 1}, value)
}

func TestSaveCombinedConcurrentWritersAreSerializedByLock(t *testing.T) {
	store := New[counters](filepath.Join(t.TempDir(), "stats.txt"), logging.NewLogger(logging.LevelInfo))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.SaveCombined(counters{Hits: 1}, addCounters))
		}()
	}
	wg.Wait()

	value, _, err := store.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 20, value.Hits)
}
