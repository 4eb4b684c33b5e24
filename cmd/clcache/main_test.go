package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/stats"
)

func TestAdministrativeCommandsRecognizesEverySubcommand(t *testing.T) {
	for _, name := range []string{
		"print-stats", "clean", "clear", "reset-stats",
		"set-max-size-bytes", "set-max-size-gb", "run-hash-server",
	} {
		assert.True(t, administrativeCommands[name], "expected %q to be an administrative command", name)
	}
	assert.False(t, administrativeCommands["cl.exe"])
	assert.False(t, administrativeCommands["moc"])
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintStatsTableIncludesHitsEntriesAndSortedMissReasons(t *testing.T) {
	counters := stats.Counters{
		CacheHits:  7,
		Entries:    3,
		TotalBytes: 1024,
		MissReasons: map[stats.MissReason]int64{
			stats.ReasonLinking:       2,
			stats.ReasonPreprocessing: 5,
		},
	}

	output := captureStdout(t, func() {
		printStatsTable(counters, 2048)
	})

	assert.Contains(t, output, "Cache hits:          7")
	assert.Contains(t, output, "Cache entries:       3")
	assert.Contains(t, output, "Misses:")
	assert.Contains(t, output, string(stats.ReasonLinking))
	assert.Contains(t, output, string(stats.ReasonPreprocessing))
}

func TestPrintStatsTableOmitsMissesSectionWhenEmpty(t *testing.T) {
	counters := stats.Counters{CacheHits: 1, Entries: 1, TotalBytes: 512}

	output := captureStdout(t, func() {
		printStatsTable(counters, 2048)
	})

	assert.NotContains(t, output, "Misses:")
}
