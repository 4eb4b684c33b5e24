package must

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/logging"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close failed") }

type failingLocker struct{}

func (failingLocker) Unlock() error { return errors.New("unlock failed") }

func TestCloseLogsButDoesNotPanicOnError(t *testing.T) {
	logger := logging.NewLogger(logging.LevelWarn)
	assert.NotPanics(t, func() { Close(failingCloser{}, logger) })
}

func TestOSRemoveIgnoresNotExist(t *testing.T) {
	logger := logging.NewLogger(logging.LevelWarn)
	assert.NotPanics(t, func() { OSRemove(filepath.Join(t.TempDir(), "absent"), logger) })
}

func TestOSRemoveActuallyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	OSRemove(path, logging.NewLogger(logging.LevelWarn))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOSRemoveAllRemovesDirectoryTree(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0700))

	OSRemoveAll(dir, logging.NewLogger(logging.LevelWarn))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestUnlockLogsButDoesNotPanicOnError(t *testing.T) {
	logger := logging.NewLogger(logging.LevelWarn)
	assert.NotPanics(t, func() { Unlock(failingLocker{}, logger) })
}

func TestIOCopyCopiesData(t *testing.T) {
	src := strings.NewReader("payload")
	var dst bytes.Buffer
	IOCopy(&dst, src, logging.NewLogger(logging.LevelWarn))
	assert.Equal(t, "payload", dst.String())
}

func TestSucceedOnlyLogsWhenErrorNonNil(t *testing.T) {
	logger := logging.NewLogger(logging.LevelWarn)
	assert.NotPanics(t, func() {
		Succeed(nil, "do nothing", logger)
		Succeed(errors.New("boom"), "do something", logger)
	})
}
