// Package cachedir resolves and creates the on-disk cache directory layout
// described in spec §6: config.txt, stats.txt, manifests/<xx>/, and
// objects/<xx>/. It plays the same role that pkg/filesystem.Mutagen played in
// the teacher codebase for locating and lazily creating well-known
// subdirectories under a single root.
package cachedir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// ConfigFileName is the name of the JSON cache configuration file.
	ConfigFileName = "config.txt"

	// StatsFileName is the name of the persistent JSON statistics file.
	StatsFileName = "stats.txt"

	// ManifestsDirectoryName is the name of the manifests subdirectory.
	ManifestsDirectoryName = "manifests"

	// ObjectsDirectoryName is the name of the artifacts subdirectory.
	ObjectsDirectoryName = "objects"

	// LocksDirectoryName is the name of the subdirectory holding cross-process
	// shard lock files.
	LocksDirectoryName = "locks"

	// defaultDirectoryName is the directory created under the user's home
	// directory when CLCACHE_DIR is unset.
	defaultDirectoryName = "clcache"
)

// Root resolves the cache root directory, honoring CLCACHE_DIR and falling
// back to ~/clcache.
func Root() (string, error) {
	if dir := os.Getenv("CLCACHE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to determine user home directory")
	}
	return filepath.Join(home, defaultDirectoryName), nil
}

// Ensure computes (and creates) a subdirectory of the cache root, returning
// its absolute path. It mirrors pkg/filesystem.Mutagen's create-and-return
// pattern from the teacher codebase.
func Ensure(root string, pathComponents ...string) (string, error) {
	result := filepath.Join(root, filepath.Join(pathComponents...))
	if err := os.MkdirAll(result, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create cache subdirectory")
	}
	return result, nil
}

// ShardDirectory returns the two-hex-character shard subdirectory name for a
// given hash, per spec §3 ("files are sharded into 256 subdirectories by the
// first two hex characters of the key").
func ShardDirectory(hash string) (string, error) {
	if len(hash) < 2 {
		return "", errors.Errorf("hash %q too short to shard", hash)
	}
	return hash[:2], nil
}
