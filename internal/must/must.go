// Package must provides helpers for performing best-effort cleanup
// operations whose errors are worth logging but never worth propagating
// (e.g. removing a temporary file after an earlier, more important, error
// has already occurred).
package must

import (
	"io"
	"os"

	"github.com/clcache-go/clcache/internal/logging"
)

// Close closes c, logging (but not returning) any error.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %v", err)
	}
}

// OSRemove removes the named file, logging (but not returning) any error.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("unable to remove %q: %v", name, err)
	}
}

// OSRemoveAll removes the named path recursively, logging (but not
// returning) any error.
func OSRemoveAll(name string, logger *logging.Logger) {
	if err := os.RemoveAll(name); err != nil {
		logger.Warnf("unable to remove %q: %v", name, err)
	}
}

// Unlock unlocks locker, logging (but not returning) any error.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warnf("unable to unlock: %v", err)
	}
}

// IOCopy copies from src to dst, logging (but not returning) any error.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy: %v", err)
	}
}

// Succeed logs a failure to complete a best-effort task.
func Succeed(err error, task string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("unable to %s: %v", task, err)
	}
}
