package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcache-go/clcache/internal/logging"
)

func TestLoadMaxCacheSizeDefaultsWhenAbsent(t *testing.T) {
	root := t.TempDir()
	logger := logging.NewLogger(logging.LevelInfo)

	size, err := LoadMaxCacheSize(root, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxCacheSize, size)
}

func TestSetMaxCacheSizeThenLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	logger := logging.NewLogger(logging.LevelInfo)

	require.NoError(t, SetMaxCacheSize(root, 2*1024*1024*1024, logger))

	size, err := LoadMaxCacheSize(root, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024*1024), size)
}

func TestSetMaxCacheSizeZeroFallsBackToDefaultOnLoad(t *testing.T) {
	root := t.TempDir()
	logger := logging.NewLogger(logging.LevelInfo)

	require.NoError(t, SetMaxCacheSize(root, 0, logger))

	size, err := LoadMaxCacheSize(root, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxCacheSize, size)
}

func TestNewEnvironmentFromOSReadsVariables(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CLCACHE_DIR", root)
	t.Setenv("CLCACHE_BUILDDIR", filepath.Join(root, "build"))
	t.Setenv("CLCACHE_CL", "/usr/bin/cl.exe")
	t.Setenv("CLCACHE_BASEDIR", root)
	t.Setenv("CLCACHE_DISABLE", "1")
	t.Setenv("CLCACHE_SINGLEFILE", "")
	t.Setenv("CLCACHE_SERVER_TIMEOUT_MINUTES", "5")
	t.Setenv("CLCACHE_NO_SAFE_EXECUTE", "1")
	t.Setenv("CL", "/DFOO /DBAR")
	t.Setenv("_CL_", "/DBAZ")
	t.Setenv("INCLUDE", "/a;/b;")
	t.Setenv("CLCACHE_LOG_LEVEL", "debug")

	env, err := NewEnvironmentFromOS()
	require.NoError(t, err)

	assert.Equal(t, root, env.Root)
	assert.Equal(t, "/usr/bin/cl.exe", env.CompilerOverride)
	assert.Equal(t, root, env.BaseDir)
	assert.Equal(t, filepath.Join(root, "build"), env.BuildDir)
	assert.True(t, env.Disabled)
	assert.False(t, env.SingleFile)
	assert.Equal(t, 5*time.Minute, env.ServerTimeout)
	assert.True(t, env.NoSafeExecute)
	assert.Equal(t, []string{"/DFOO", "/DBAR"}, env.ExtraCLArgs)
	assert.Equal(t, []string{"/DBAZ"}, env.ExtraUnderscoreCL)
	assert.Equal(t, []string{"/a", "/b"}, env.ExtraIncludeDirs)
	assert.Equal(t, logging.LevelDebug, env.LogLevel)
}

func TestNewEnvironmentFromOSDefaultsServerTimeoutAndLogLevel(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CLCACHE_DIR", root)
	t.Setenv("CLCACHE_BUILDDIR", root)
	t.Setenv("CLCACHE_SERVER_TIMEOUT_MINUTES", "")
	t.Setenv("CLCACHE_LOG_LEVEL", "")

	env, err := NewEnvironmentFromOS()
	require.NoError(t, err)

	assert.Equal(t, 180*time.Second, env.ServerTimeout)
	assert.Equal(t, logging.LevelInfo, env.LogLevel)
}

func TestParseSizeThenFormatSize(t *testing.T) {
	bytes, err := ParseSize("2GB")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1000*1000*1000), bytes)

	assert.Contains(t, FormatSize(2*1024*1024*1024), "GiB")
}
