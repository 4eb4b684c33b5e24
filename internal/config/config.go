// Package config implements the cache's process-wide configuration (spec
// §3/§6): the on-disk config.txt holding MaximumCacheSize, and the
// Environment value assembled once at startup from environment variables, per
// spec §9's design note ("Global configuration latched at module load ...
// Replace with an explicit Environment value constructed once at startup").
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/jsonstore"
	"github.com/clcache-go/clcache/internal/logging"
)

// DefaultMaxCacheSize is the default maximum cache size, per spec §3
// ("default 40 GiB").
const DefaultMaxCacheSize int64 = 40 * 1024 * 1024 * 1024

// CacheConfig is the JSON structure persisted to config.txt.
type CacheConfig struct {
	MaximumCacheSize int64 `json:"MaximumCacheSize"`
}

// Store returns a jsonstore.Store bound to config.txt under root.
func Store(root string, logger *logging.Logger) *jsonstore.Store[CacheConfig] {
	return jsonstore.New[CacheConfig](filepath.Join(root, cachedir.ConfigFileName), logger)
}

// LoadMaxCacheSize loads config.txt's MaximumCacheSize, returning the
// default if the file does not exist. Per the supplemented feature in
// SPEC_FULL.md §12, callers should reload this on each invocation rather
// than caching it for the process lifetime, since an administrative
// set-max-size-bytes/-gb command may run concurrently with compiles.
func LoadMaxCacheSize(root string, logger *logging.Logger) (int64, error) {
	cfg, _, err := Store(root, logger).Load()
	if err != nil {
		return 0, err
	}
	if cfg.MaximumCacheSize <= 0 {
		return DefaultMaxCacheSize, nil
	}
	return cfg.MaximumCacheSize, nil
}

// SetMaxCacheSize persists a new MaximumCacheSize.
func SetMaxCacheSize(root string, bytes int64, logger *logging.Logger) error {
	return Store(root, logger).Save(CacheConfig{MaximumCacheSize: bytes})
}

// Environment is the set of process-wide settings read from environment
// variables at startup (spec §6), constructed once and threaded through the
// engine rather than read piecemeal via os.Getenv deep in component code.
type Environment struct {
	Root               string
	CompilerOverride   string
	BaseDir            string
	BuildDir           string
	Disabled           bool
	SingleFile         bool
	ServerTimeout      time.Duration
	NoSafeExecute      bool
	ExtraCLArgs        []string // from CL
	ExtraUnderscoreCL  []string // from _CL_
	ExtraIncludeDirs   []string // from INCLUDE
	LogLevel           logging.Level
}

// NewEnvironmentFromOS constructs an Environment by reading the process
// environment, per the variable list in spec §6.
func NewEnvironmentFromOS() (*Environment, error) {
	root, err := cachedir.Root()
	if err != nil {
		return nil, err
	}

	buildDir := os.Getenv("CLCACHE_BUILDDIR")
	if buildDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			buildDir = cwd
		}
	}

	timeout := 180 * time.Second
	if raw := os.Getenv("CLCACHE_SERVER_TIMEOUT_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil {
			timeout = time.Duration(minutes) * time.Minute
		}
	}

	level := logging.LevelInfo
	if raw := os.Getenv("CLCACHE_LOG_LEVEL"); raw != "" {
		if parsed, ok := logging.NameToLevel(raw); ok {
			level = parsed
		}
	}

	return &Environment{
		Root:              root,
		CompilerOverride:  os.Getenv("CLCACHE_CL"),
		BaseDir:           os.Getenv("CLCACHE_BASEDIR"),
		BuildDir:          buildDir,
		Disabled:          os.Getenv("CLCACHE_DISABLE") != "",
		SingleFile:        os.Getenv("CLCACHE_SINGLEFILE") != "",
		ServerTimeout:     timeout,
		NoSafeExecute:     os.Getenv("CLCACHE_NO_SAFE_EXECUTE") != "",
		ExtraCLArgs:       splitEnvArgs(os.Getenv("CL")),
		ExtraUnderscoreCL: splitEnvArgs(os.Getenv("_CL_")),
		ExtraIncludeDirs:  splitPathList(os.Getenv("INCLUDE")),
		LogLevel:          level,
	}, nil
}

// splitEnvArgs does a simple whitespace tokenization of the CL/_CL_
// environment variables; full response-file-style quoting rules are applied
// by internal/cmdline when these tokens are merged into the user's command
// line (spec §4.8: "the CL and _CL_ environment variables are tokenized and
// prepended/appended ... matching the compiler's own convention").
func splitEnvArgs(value string) []string {
	return strings.Fields(value)
}

// splitPathList splits a Windows-style semicolon-delimited path list.
func splitPathList(value string) []string {
	if value == "" {
		return nil
	}
	var dirs []string
	for _, part := range strings.Split(value, ";") {
		if part != "" {
			dirs = append(dirs, part)
		}
	}
	return dirs
}

// ParseSize parses a human-readable byte size (e.g. "2GB", "512MB"), used by
// the set-max-size-gb administrative command (set-max-size-bytes takes a
// plain integer instead).
func ParseSize(value string) (int64, error) {
	bytes, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to parse size %q", value)
	}
	return int64(bytes), nil
}

// FormatSize renders a byte count using humanize, for print-stats output.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
