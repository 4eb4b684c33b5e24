package manifeststore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/atomicfile"
	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/logging"
)

// maxWriteAttempts and writeRetryDelay bound the retries spec §4.6 calls for
// ("atomic write with retries on transient I/O failure (bounded attempts,
// short sleeps)"); the exact figures are drawn from spec §7's "manifest
// writes retry up to ~10 times with 0.5-1s sleeps".
const (
	maxWriteAttempts = 10
	writeRetryDelay  = 500 * time.Millisecond
)

// Store manages manifest files under a manifests/ directory, sharded by the
// first two hex characters of the manifest hash.
type Store struct {
	dir    string
	logger *logging.Logger
}

// New creates a Store rooted at manifestsDir (normally
// <cache root>/manifests).
func New(manifestsDir string, logger *logging.Logger) *Store {
	return &Store{dir: manifestsDir, logger: logger}
}

func (s *Store) path(manifestHash string) (string, error) {
	shard, err := cachedir.ShardDirectory(manifestHash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, shard, manifestHash+".json"), nil
}

// Get reads and touches (bumps mtime of) the manifest file for
// manifestHash, so the store's file-level LRU position is maintained, per
// spec §4.6. It returns (nil, 0, false, nil) if no manifest exists yet.
// Callers are expected to hold the manifest-shard cross-process lock for
// manifestHash before calling Get.
func (s *Store) Get(manifestHash string) (*Manifest, int64, bool, error) {
	path, err := s.path(manifestHash)
	if err != nil {
		return nil, 0, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, 0, false, nil
	} else if err != nil {
		return nil, 0, false, errors.Wrapf(err, "unable to read manifest %s", manifestHash)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		// spec §7: "JSON-parse: Broken manifest file -> Log, treat file as
		// absent; it will be overwritten on next commit."
		s.logger.Warnf("manifest %s is corrupt, treating as absent: %v", manifestHash, err)
		return nil, 0, false, nil
	}
	manifest.Dedup()

	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		s.logger.Warnf("unable to touch manifest %s: %v", manifestHash, err)
	}

	return &manifest, int64(len(data)), true, nil
}

// Set atomically writes manifest for manifestHash, retrying transient I/O
// failures a bounded number of times with short sleeps, per spec §4.6/§7.
// Callers are expected to hold the manifest-shard cross-process lock for
// manifestHash before calling Set.
func (s *Store) Set(manifestHash string, manifest *Manifest) (int64, error) {
	path, err := s.path(manifestHash)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return 0, errors.Wrap(err, "unable to create manifest shard directory")
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "unable to marshal manifest")
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryDelay)
		}
		if err := atomicfile.WriteFile(path, data, 0600, s.logger); err != nil {
			lastErr = err
			continue
		}
		return int64(len(data)), nil
	}
	return 0, errors.Wrapf(lastErr, "unable to write manifest %s after %d attempts", manifestHash, maxWriteAttempts)
}

// manifestFileInfo pairs a manifest file's path/hash with its size and mtime,
// for eviction sorting.
type manifestFileInfo struct {
	hash    string
	path    string
	size    int64
	modTime time.Time
}

// Clean sorts existing manifest files by mtime descending (most-recent
// first) and keeps files while cumulative size stays within maxBytes,
// deleting the rest, per spec §4.6.
func (s *Store) Clean(maxBytes int64) (int64, error) {
	var files []manifestFileInfo

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "unable to list manifests directory")
	}

	for _, shardEntry := range entries {
		if !shardEntry.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.dir, shardEntry.Name())
		shardFiles, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, f := range shardFiles {
			if f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			files = append(files, manifestFileInfo{
				hash:    f.Name(),
				path:    filepath.Join(shardPath, f.Name()),
				size:    info.Size(),
				modTime: info.ModTime(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	var retained int64
	for _, f := range files {
		if retained+f.size <= maxBytes {
			retained += f.size
			continue
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warnf("unable to remove manifest %s during cleanup: %v", f.path, err)
		}
	}

	return retained, nil
}
