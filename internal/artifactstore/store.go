// Package artifactstore implements the Artifact Store (spec §4.7): a
// content-addressed directory per object hash holding an LZ4-compressed
// object file and the captured, already-canonicalized stdout/stderr text.
// Its staged-directory-then-rename commit algorithm and eviction-by-mtime
// policy are grounded on the teacher codebase's pkg/staging package (the
// "<key>.new" staging convention, sharded-by-hex-prefix directory layout),
// generalized here with internal/atomicfile's directory-commit helper.
package artifactstore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/atomicfile"
	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/must"
)

const (
	objectFileName = "object.lz4"
	stdoutFileName = "output.txt"
	stderrFileName = "stderr.txt"
)

// unlinkRetryAttempts bounds the retries of retryUnlinkableOp, which Get uses
// to refresh object.lz4's mtime on hit; no file is unlinked on hit. This
// matters on Windows, where another handle briefly holding the file open
// (e.g. an antivirus scanner) can transiently fail a file operation.
const unlinkRetryAttempts = 60

const unlinkRetryDelay = 10 * time.Millisecond

// Store manages artifact directories under an objects/ directory, sharded by
// the first two hex characters of the object hash.
type Store struct {
	dir    string
	logger *logging.Logger
}

// New creates a Store rooted at objectsDir (normally
// <cache root>/objects).
func New(objectsDir string, logger *logging.Logger) *Store {
	return &Store{dir: objectsDir, logger: logger}
}

func (s *Store) artifactDir(objectHash string) (string, error) {
	shard, err := cachedir.ShardDirectory(objectHash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, shard, objectHash), nil
}

// Has reports whether a complete artifact set exists for objectHash. Callers
// are expected to hold the object-shard cross-process lock.
func (s *Store) Has(objectHash string) bool {
	dir, err := s.artifactDir(objectHash)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, objectFileName))
	return err == nil
}

// Retrieved is a successfully retrieved artifact: its captured stdout and
// stderr (already canonicalized — callers must reverse canonicalization
// before printing, per spec §4.9) plus a means of streaming the decompressed
// object file to its destination.
type Retrieved struct {
	Stdout []byte
	Stderr []byte

	dir string
}

// CopyObjectTo decompresses the stored object.lz4 directly into destPath,
// creating/truncating it as needed.
func (r *Retrieved) CopyObjectTo(destPath string) error {
	source, err := os.Open(filepath.Join(r.dir, objectFileName))
	if err != nil {
		return errors.Wrap(err, "unable to open stored object")
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return errors.Wrap(err, "unable to create output object file")
	}
	defer dest.Close()

	reader := lz4.NewReader(source)
	if _, err := io.Copy(dest, reader); err != nil {
		return errors.Wrap(err, "unable to decompress stored object")
	}
	return nil
}

// Get retrieves the artifact for objectHash, touching object.lz4's mtime to
// refresh its LRU signal (spec §4.7: "get touches object.lz4 to refresh
// atime/mtime"). Callers are expected to hold the object-shard cross-process
// lock.
func (s *Store) Get(objectHash string) (*Retrieved, error) {
	dir, err := s.artifactDir(objectHash)
	if err != nil {
		return nil, err
	}

	objectPath := filepath.Join(dir, objectFileName)
	if _, err := os.Stat(objectPath); err != nil {
		return nil, errors.Wrap(err, "artifact not found")
	}

	now := time.Now()
	if err := retryUnlinkableOp(func() error { return os.Chtimes(objectPath, now, now) }); err != nil {
		s.logger.Warnf("unable to touch artifact %s: %v", objectHash, err)
	}

	stdout, err := os.ReadFile(filepath.Join(dir, stdoutFileName))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read captured stdout")
	}
	stderr, err := os.ReadFile(filepath.Join(dir, stderrFileName))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read captured stderr")
	}

	return &Retrieved{Stdout: stdout, Stderr: stderr, dir: dir}, nil
}

// retryUnlinkableOp retries a filesystem operation that may transiently fail
// due to another process briefly holding a handle, per spec §7.
func retryUnlinkableOp(op func() error) error {
	var lastErr error
	for attempt := 0; attempt < unlinkRetryAttempts; attempt++ {
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(unlinkRetryDelay)
	}
	return lastErr
}

// Set commits a new artifact for objectHash: the object file at
// objectFilePath is LZ4-compressed into place, and stdout/stderr are written
// verbatim (the caller is responsible for having already canonicalized
// them). It returns the total on-disk size of the new artifact directory.
// Callers are expected to hold the object-shard cross-process lock.
func (s *Store) Set(objectHash, objectFilePath string, stdout, stderr []byte) (int64, error) {
	dir, err := s.artifactDir(objectHash)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0700); err != nil {
		return 0, errors.Wrap(err, "unable to create artifact shard directory")
	}

	staging, err := atomicfile.StageDirectory(dir)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			must.OSRemoveAll(staging, s.logger)
		}
	}()

	size, err := compressInto(objectFilePath, filepath.Join(staging, objectFileName))
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(filepath.Join(staging, stdoutFileName), stdout, 0600); err != nil {
		return 0, errors.Wrap(err, "unable to write captured stdout")
	}
	size += int64(len(stdout))

	if err := os.WriteFile(filepath.Join(staging, stderrFileName), stderr, 0600); err != nil {
		return 0, errors.Wrap(err, "unable to write captured stderr")
	}
	size += int64(len(stderr))

	if err := atomicfile.CommitDirectory(staging, dir); err != nil {
		return 0, err
	}
	committed = true

	return size, nil
}

// compressInto LZ4-frame compresses the file at sourcePath into destPath,
// returning the compressed size.
func compressInto(sourcePath, destPath string) (int64, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return 0, errors.Wrap(err, "unable to open object file to compress")
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "unable to create compressed object file")
	}
	defer dest.Close()

	var countingBuffer bytes.Buffer
	writer := lz4.NewWriter(&countingBuffer)
	if _, err := io.Copy(writer, source); err != nil {
		return 0, errors.Wrap(err, "unable to compress object file")
	}
	if err := writer.Close(); err != nil {
		return 0, errors.Wrap(err, "unable to finalize compressed object file")
	}
	if _, err := dest.Write(countingBuffer.Bytes()); err != nil {
		return 0, errors.Wrap(err, "unable to write compressed object file")
	}

	return int64(countingBuffer.Len()), nil
}

// entryInfo pairs a committed artifact directory with its earliest mtime
// and total size, for eviction.
type entryInfo struct {
	key          string
	path         string
	earliestTime time.Time
	size         int64
}

// Clean lists all committed entries, sorts ascending by their earliest
// mtime, and removes the oldest until total size drops below maxBytes, per
// spec §4.7.
func (s *Store) Clean(maxBytes int64) (int, int64, error) {
	var entries []entryInfo

	shards, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, errors.Wrap(err, "unable to list objects directory")
	}

	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.dir, shard.Name())
		keys, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, key := range keys {
			if !key.IsDir() {
				continue
			}
			artifactPath := filepath.Join(shardPath, key.Name())
			size, earliest, ok := describeArtifact(artifactPath)
			if !ok {
				continue
			}
			entries = append(entries, entryInfo{
				key:          key.Name(),
				path:         artifactPath,
				earliestTime: earliest,
				size:         size,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].earliestTime.Before(entries[j].earliestTime)
	})

	var totalSize int64
	for _, e := range entries {
		totalSize += e.size
	}

	kept := len(entries)
	keptSize := totalSize
	i := 0
	for keptSize > maxBytes && i < len(entries) {
		e := entries[i]
		if err := os.RemoveAll(e.path); err != nil {
			s.logger.Warnf("unable to remove artifact %s during cleanup: %v", e.path, err)
		} else {
			keptSize -= e.size
			kept--
		}
		i++
	}

	return kept, keptSize, nil
}

// describeArtifact walks an artifact directory computing its total size and
// the earliest mtime among its files (used as the eviction recency signal,
// per spec §9's decision to standardize on mtime).
func describeArtifact(dir string) (int64, time.Time, bool) {
	var total int64
	var earliest time.Time
	found := false

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, time.Time{}, false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		if !found || info.ModTime().Before(earliest) {
			earliest = info.ModTime()
		}
		found = true
	}
	return total, earliest, found
}
