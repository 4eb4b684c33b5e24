package artifactstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/logging"
)

const testObjectHash = "0123456789abcdef0123456789abcdef"

func writeSourceObject(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "fake.obj")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestHasReturnsFalseForAbsentArtifact(t *testing.T) {
	store := New(t.TempDir(), logging.NewLogger(logging.LevelInfo))
	assert.False(t, store.Has(testObjectHash))
}

func TestSetThenGetRoundTripsObjectAndOutput(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "objects"), logging.NewLogger(logging.LevelInfo))

	objectPath := writeSourceObject(t, dir, "object file contents")
	size, err := store.Set(testObjectHash, objectPath, []byte("stdout text"), []byte("stderr text"))
	require.NoError(t, err)
	assert.Positive(t, size)

	assert.True(t, store.Has(testObjectHash))

	retrieved, err := store.Get(testObjectHash)
	require.NoError(t, err)
	assert.Equal(t, "stdout text", string(retrieved.Stdout))
	assert.Equal(t, "stderr text", string(retrieved.Stderr))

	destPath := filepath.Join(dir, "restored.obj")
	require.NoError(t, retrieved.CopyObjectTo(destPath))
	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "object file contents", string(data))
}

func TestSetLeavesNoStagingDirectoryOnSuccess(t *testing.T) {
	dir := t.TempDir()
	objectsDir := filepath.Join(dir, "objects")
	store := New(objectsDir, logging.NewLogger(logging.LevelInfo))

	objectPath := writeSourceObject(t, dir, "payload")
	_, err := store.Set(testObjectHash, objectPath, nil, nil)
	require.NoError(t, err)

	shardDir := filepath.Join(objectsDir, testObjectHash[:2])
	entries, err := os.ReadDir(shardDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the committed artifact directory should remain, no staging leftovers")
}

func TestCleanRemovesOldestArtifactsUntilUnderBudget(t *testing.T) {
	dir := t.TempDir()
	objectsDir := filepath.Join(dir, "objects")
	store := New(objectsDir, logging.NewLogger(logging.LevelInfo))

	hashes := []string{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		"cccccccccccccccccccccccccccccccc",
	}

	var totalSize int64
	for i, hash := range hashes {
		objectPath := writeSourceObject(t, dir, "payload-data-for-artifact")
		size, err := store.Set(hash, objectPath, []byte("out"), []byte("err"))
		require.NoError(t, err)
		totalSize += size

		artifactDir, err := store.artifactDir(hash)
		require.NoError(t, err)
		backdated := time.Now().Add(-time.Duration(len(hashes)-i) * time.Hour)
		require.NoError(t, filepath.Walk(artifactDir, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			return os.Chtimes(p, backdated, backdated)
		}))
	}

	kept, keptSize, err := store.Clean(totalSize / 2)
	require.NoError(t, err)
	assert.Less(t, kept, len(hashes))
	assert.LessOrEqual(t, keptSize, totalSize/2+1)

	assert.False(t, store.Has(hashes[0]), "oldest artifact should have been evicted first")
	assert.True(t, store.Has(hashes[len(hashes)-1]), "newest artifact should survive")
}

func TestCleanOnMissingObjectsDirIsNoop(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist"), logging.NewLogger(logging.LevelInfo))
	kept, keptSize, err := store.Clean(1024)
	require.NoError(t, err)
	assert.Zero(t, kept)
	assert.Zero(t, keptSize)
}
