package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenUnlockThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	locker, err := New(path, 0600)
	require.NoError(t, err)
	defer locker.Close()

	result, err := locker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)

	require.NoError(t, locker.Unlock())

	result, err = locker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)
}

func TestCloseReleasesLockAndClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	locker, err := New(path, 0600)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, locker.Close())

	another, err := New(path, 0600)
	require.NoError(t, err)
	defer another.Close()

	result, err := another.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)
}

func TestAcquireWithTimeoutSucceedsWhenUncontended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	locker, result, err := AcquireWithTimeout(path, 0600, 1*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)
	defer locker.Close()
}

func TestLockerPathReturnsBackingFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	locker, err := New(path, 0600)
	require.NoError(t, err)
	defer locker.Close()

	assert.Equal(t, path, locker.Path())
}

func TestAcquireRespectsAlreadyExpiredContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	locker, err := New(path, 0600)
	require.NoError(t, err)
	defer locker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	time.Sleep(time.Millisecond)

	// tryLock succeeds immediately (uncontended), so Acquire should return
	// before it ever has to consult the expired deadline.
	result, err := locker.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)
}
