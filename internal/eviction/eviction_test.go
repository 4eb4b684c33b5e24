package eviction

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/artifactstore"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/manifeststore"
	"github.com/clcache-go/clcache/internal/stats"
)

func TestCountersAfterReflectsRetainedTotals(t *testing.T) {
	result := Result{
		RetainedManifestBytes: 100,
		RetainedArtifactCount: 3,
		RetainedArtifactBytes: 900,
	}
	counters := CountersAfter(result)
	assert.EqualValues(t, 3, counters.Entries)
	assert.EqualValues(t, 1000, counters.TotalBytes)
	assert.Empty(t, counters.MissReasons)
}

func TestRunEvictsDownToTargetAcrossBothStores(t *testing.T) {
	root := t.TempDir()

	manifestsDir := filepath.Join(root, "manifests")
	objectsDir := filepath.Join(root, "objects")
	logger := logging.NewLogger(logging.LevelInfo)

	manifests := manifeststore.New(manifestsDir, logger)
	artifacts := artifactstore.New(objectsDir, logger)

	hashes := []string{
		"1111111111111111111111111111111a",
		"2222222222222222222222222222222b",
		"3333333333333333333333333333333c",
	}
	hashes[0] = hashes[0][:32]
	hashes[1] = hashes[1][:32]
	hashes[2] = hashes[2][:32]

	sourcePath := filepath.Join(root, "fake.obj")
	require.NoError(t, os.WriteFile(sourcePath, []byte("payload-contents-for-eviction-test"), 0600))

	for i, hash := range hashes {
		m := manifeststore.NewManifest()
		m.AddEntry(manifeststore.ManifestEntry{IncludesContentHash: "ch", ObjectHash: hash})
		_, err := manifests.Set(hash, m)
		require.NoError(t, err)

		_, err = artifacts.Set(hash, sourcePath, []byte("out"), []byte("err"))
		require.NoError(t, err)

		backdated := time.Now().Add(-time.Duration(len(hashes)-i) * time.Hour)
		manifestPath, pathErr := manifestPathFor(manifestsDir, hash)
		require.NoError(t, pathErr)
		require.NoError(t, os.Chtimes(manifestPath, backdated, backdated))
	}

	result, err := Run(context.Background(), root, 10, manifests, artifacts, logger)
	require.NoError(t, err)

	assert.Less(t, result.RetainedArtifactCount, len(hashes))
}

func manifestPathFor(manifestsDir, hash string) (string, error) {
	shard := hash[:2]
	return filepath.Join(manifestsDir, shard, hash+".json"), nil
}
