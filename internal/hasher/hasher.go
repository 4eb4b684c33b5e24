// Package hasher implements the Content Hasher (spec §4.3): a streaming MD5
// digest of file contents, with build-directory source rewriting applied
// before hashing so that machine-pinned paths baked into generated code
// don't leak into the cache key. Its pluggable-algorithm shape is grounded
// on the teacher codebase's pkg/synchronization/hashing.Algorithm.Factory,
// which returns a func() hash.Hash rather than hard-coding a single
// algorithm.
package hasher

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/canon"
)

// blockSize is the unit size for streamed reads; spec §4.3 describes
// "chunked (typically 128 × block-size buffers)".
const blockSize = 64 * 1024

// chunkBufferSize is the buffer size used per read, 128 block-sized units.
const chunkBufferSize = 128 * blockSize

// Factory is the hash constructor used throughout this package; exposed as
// a variable (rather than hard-coded calls to md5.New) so tests can swap in
// a cheaper or distinguishable algorithm, matching the teacher's
// Algorithm.Factory pattern.
var Factory = md5.New

// HashBytes hashes an in-memory byte slice and returns its hex digest.
func HashBytes(data []byte) string {
	h := Factory()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader streams r through the hash function in blockSize-unit chunks.
func HashReader(r io.Reader) (string, error) {
	h := Factory()
	buf := make([]byte, chunkBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", errors.Wrap(err, "unable to stream data into hasher")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile hashes the file at path. If underBuildDir is true, the file's
// contents are first passed through env's source-embedded base-dir rewrite
// (spec §4.1/§4.3) before being hashed, so that absolute paths baked into
// generated code (unity build shims, moc output) don't make otherwise
// identical files hash differently across machines.
func HashFile(path string, env *canon.Environment, underBuildDir bool) (string, error) {
	if !underBuildDir {
		file, err := os.Open(path)
		if err != nil {
			return "", errors.Wrapf(err, "unable to open %s", path)
		}
		defer file.Close()
		return HashReader(file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %s", path)
	}
	rewritten := env.RewriteSourceEmbeddedPaths(data)
	return HashBytes(rewritten), nil
}

// CombineHashes produces the includes-content-hash described in spec §3: the
// hash of the comma-joined hashes of a set of files' contents, in the order
// given by the caller (the order recorded in the manifest entry's include
// list).
func CombineHashes(hashes []string) string {
	return HashBytes([]byte(strings.Join(hashes, ",")))
}

// ToolsetHash combines a compiler identity hash, the canonicalized,
// sorted command-line options, and the manifest format version into a
// single "toolset data" digest, forming part of the manifest hash per spec
// §4.9 step (a). It is exposed here (rather than folded directly into
// engine package logic) because it is purely a function of hashed byte
// content, matching the Content Hasher's stated responsibility in spec §4.3
// ("may be combined with an optional toolset data string").
func ToolsetHash(compilerHash string, canonicalizedArgs []string, formatVersion int) string {
	h := Factory()
	io.WriteString(h, compilerHash)
	for _, arg := range canonicalizedArgs {
		io.WriteString(h, arg)
	}
	io.WriteString(h, hex.EncodeToString([]byte{byte(formatVersion)}))
	return hex.EncodeToString(h.Sum(nil))
}

// NewHash exposes the configured hash.Hash factory for callers (e.g. the
// hash server) that want to accumulate digests without going through
// HashReader/HashFile.
func NewHash() hash.Hash {
	return Factory()
}
