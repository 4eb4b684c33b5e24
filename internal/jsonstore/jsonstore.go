// Package jsonstore implements the Persistent JSON Store (spec §4.5): a
// JSON-object-on-disk with atomic writes and mtime-aware merge-on-write, so
// that concurrent updates from multiple compiler processes are commutative
// for counter-valued keys. It generalizes the teacher codebase's
// WriteFileAtomic (pkg/filesystem/atomic.go) with the read-compare-merge
// step spec §4.5 requires, which the teacher's own config/state files don't
// need since mutagen's daemon is the sole writer of its state files.
package jsonstore

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/atomicfile"
	"github.com/clcache-go/clcache/internal/lock"
	"github.com/clcache-go/clcache/internal/logging"
)

// MergeFunc combines the value currently on disk with an incoming delta,
// producing the value that should be written back. For counter-valued
// stores this is simple key-wise addition; for the single-value config
// store it is "replace".
type MergeFunc[T any] func(onDisk, delta T) T

// Store is a JSON file holding a single value of type T, with atomic writes
// and mtime-aware merging on SaveCombined.
type Store[T any] struct {
	path   string
	logger *logging.Logger
}

// New creates a store backed by the file at path.
func New[T any](path string, logger *logging.Logger) *Store[T] {
	return &Store[T]{path: path, logger: logger}
}

// Load reads the current value and its on-disk modification time. If the
// file does not exist, it returns the zero value of T and a zero time with
// no error, since an absent store is simply an empty one (spec §3: "Manifest
// ... either does not exist or ..." — the same "absence is valid" discipline
// applies to every JSON-backed store in this system).
func (s *Store[T]) Load() (T, time.Time, error) {
	var value T
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return value, time.Time{}, nil
	} else if err != nil {
		return value, time.Time{}, errors.Wrap(err, "unable to stat store file")
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return value, time.Time{}, nil
	} else if err != nil {
		return value, time.Time{}, errors.Wrap(err, "unable to read store file")
	}

	if len(data) == 0 {
		return value, info.ModTime(), nil
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, time.Time{}, errors.Wrap(err, "unable to parse store file")
	}
	return value, info.ModTime(), nil
}

// SaveCombined implements spec §4.5's save_combined entry point: it adds (via
// merge) the caller's delta into the on-disk value under a cross-process
// lock, re-reading the on-disk copy first since it may have changed since
// the caller last loaded it.
func (s *Store[T]) SaveCombined(delta T, merge MergeFunc[T]) error {
	locker, _, err := lock.AcquireWithTimeout(s.path+".lock", 0600, lock.DefaultStoreTimeout)
	if err != nil {
		return errors.Wrap(err, "unable to acquire store lock")
	}
	defer locker.Close()

	onDisk, _, err := s.Load()
	if err != nil {
		return err
	}

	merged := merge(onDisk, delta)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal store value")
	}
	return atomicfile.WriteFile(s.path, data, 0600, s.logger)
}

// Save writes value directly, bypassing the merge step. It is used for
// unconditional replacements like the administrative reset-stats /
// set-max-size-bytes commands, which are meant to clobber rather than merge.
func (s *Store[T]) Save(value T) error {
	locker, _, err := lock.AcquireWithTimeout(s.path+".lock", 0600, lock.DefaultStoreTimeout)
	if err != nil {
		return errors.Wrap(err, "unable to acquire store lock")
	}
	defer locker.Close()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal store value")
	}
	return atomicfile.WriteFile(s.path, data, 0600, s.logger)
}
