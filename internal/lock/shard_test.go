package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardPathIsStableAndShardedByHashPrefix(t *testing.T) {
	root := t.TempDir()

	path, err := ShardPath(root, ManifestShard, "ab1234567890")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "locks", "manifest", "ab.lock"), path)

	objectPath, err := ShardPath(root, ObjectShard, "ab1234567890")
	require.NoError(t, err)
	assert.NotEqual(t, path, objectPath)
}

func TestAcquireShardAcquiresAndReleases(t *testing.T) {
	root := t.TempDir()

	locker, err := AcquireShard(context.Background(), root, ManifestShard, "aaaaaaaaaaaa")
	require.NoError(t, err)
	require.NoError(t, locker.Close())
}

func TestInProcessAcquireIsExclusiveForSameKey(t *testing.T) {
	p := NewInProcess()

	release1, err := p.Acquire(context.Background(), "hash-a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := p.Acquire(context.Background(), "hash-a")
		assert.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(1 * time.Second):
		t.Fatal("second acquire should have proceeded after release")
	}
}

func TestInProcessAcquireDifferentKeysDoNotBlock(t *testing.T) {
	p := NewInProcess()

	release1, err := p.Acquire(context.Background(), "hash-a")
	require.NoError(t, err)
	defer release1()

	release2, err := p.Acquire(context.Background(), "hash-b")
	require.NoError(t, err)
	release2()
}

func TestInProcessAcquireTimesOutWhenContended(t *testing.T) {
	p := NewInProcess()

	release1, err := p.Acquire(context.Background(), "hash-a")
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx, "hash-a")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquireAllShardsThenReleaseAll(t *testing.T) {
	root := t.TempDir()

	lockers, err := AcquireAllShards(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, lockers, 512)

	ReleaseAll(lockers)
}
