// Package canon implements the Path Canonicalizer (spec §4.1): a total
// function mapping per-host absolute paths to portable placeholder strings
// and back, so that cache keys and stored compiler output are stable across
// developer machines.
//
// It replaces the teacher codebase's module-level globals
// (HomeDirectory, MutagenDataDirectoryPath, etc. in pkg/filesystem/mutagen.go)
// with a single explicit Environment value constructed once at startup and
// threaded through every component that needs it, per spec §9's design note
// ("Global configuration latched at module load ... Replace with an explicit
// Environment value").
package canon

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Placeholder names for the structural roots. The order in which
// Canonicalize tries them is the order their roots are registered (see
// Canonicalize).
const (
	PlaceholderBuildDir  = "<BUILD_DIR>"
	PlaceholderBaseDir   = "<BASE_DIR>"
	PlaceholderConanHome = "<CONAN_USER_HOME>"
	PlaceholderQtRoot    = "<QT_ROOT>"
	PlaceholderLLVMRoot  = "<LLVM_ROOT>"
	PlaceholderVenvRoot  = "<VENV_ROOT>"
)

// toolchainEnvVars lists the fixed, ordered set of toolchain environment
// variables consulted after the structural roots, per spec §4.1.
var toolchainEnvVars = []string{
	"VCINSTALLDIR",
	"WindowsSdkDir",
	"VSINSTALLDIR",
	"CommonProgramFiles",
	"ProgramFiles",
	"USERPROFILE",
	"SystemRoot",
}

// root is one canonicalization root: a placeholder and the set of forms
// (literal, resolved, and on Windows, short-name) it may be matched against.
type root struct {
	placeholder string
	forms       []string // all lower-cased, trailing separators trimmed
}

// Environment holds every well-known root used for path canonicalization,
// constructed once from process environment variables and explicit
// configuration (CLCACHE_BASEDIR, CLCACHE_BUILDDIR). It owns the process-wide
// hashing/regexp memoization caches mentioned in spec §9 ("Process-wide
// hashing cache ... should become a typed cache owned by the Environment,
// not a function attribute").
type Environment struct {
	mu    sync.RWMutex
	roots []root // priority order; mutated only to latch Qt/LLVM roots lazily

	qtLatched   bool
	llvmLatched bool

	// includePattern matches #include "..." and #include <...> lines for the
	// source-embedded rewrite (spec §4.1, second paragraph).
	includePattern *regexp.Regexp

	// commentPathPattern matches a leading "// <path>" comment line, the
	// third source-embedded form spec §4.1 names alongside the two #include
	// forms (mirrored from the original implementation's
	// getBaseDirSourceRegex, whose alternation treats `#\s*include\s+["<]`
	// and `//\s*` as interchangeable prefixes ahead of the same path
	// substitution).
	commentPathPattern *regexp.Regexp
}

// New constructs an Environment from the current process environment. baseDir
// and buildDir are resolved from CLCACHE_BASEDIR/CLCACHE_BUILDDIR by the
// caller (normally internal/config) and passed in explicitly so this
// constructor has no hidden os.Getenv dependency beyond the toolchain
// variables it is documented to read.
func New(baseDir, buildDir string) *Environment {
	e := &Environment{
		includePattern:     regexp.MustCompile(`(#include\s*["<])([^">]+)([">])`),
		commentPathPattern: regexp.MustCompile(`^(\s*//\s*)(\S+)`),
	}

	if buildDir != "" {
		e.addRoot(PlaceholderBuildDir, buildDir)
	}
	if baseDir != "" {
		e.addRoot(PlaceholderBaseDir, baseDir)
	}

	conanHome := os.Getenv("CONAN_USER_HOME")
	if short := os.Getenv("CONAN_USER_HOME_SHORT"); short != "" {
		// The short-path indirection: CONAN_USER_HOME_SHORT points at a
		// directory containing a real_path.txt file naming the actual home.
		if real, err := readRealPathIndirection(short); err == nil && real != "" {
			conanHome = real
		}
		e.addRoot(PlaceholderConanHome, short)
	}
	if conanHome != "" {
		e.addRoot(PlaceholderConanHome, conanHome)
	}

	if venv := os.Getenv("GM_VENV_HOME"); venv != "" {
		e.addRoot(PlaceholderVenvRoot, venv)
	}

	for _, name := range toolchainEnvVars {
		if value := os.Getenv(name); value != "" {
			e.addRoot("<"+strings.ToUpper(name)+">", value)
		}
	}

	return e
}

// readRealPathIndirection reads "real_path.txt" inside the given directory,
// which Conan's short-path mechanism uses to point back at the true,
// over-long user-home path.
func readRealPathIndirection(shortHomeDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(shortHomeDir, "real_path.txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// addRoot registers a new canonicalization root, indexing both its literal
// and fully-resolved (symlink-followed, short-name-expanded) forms, per spec
// §4.1 ("Path comparison ... must succeed against both the literal and the
// fully-resolved form of the reference root").
func (e *Environment) addRoot(placeholder, path string) {
	if path == "" {
		return
	}
	// The literal form always comes first, so Expand substitutes it.
	formList := []string{normalizeForCompare(path)}
	addForm := func(form string) {
		for _, existing := range formList {
			if existing == form {
				return
			}
		}
		formList = append(formList, form)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		addForm(normalizeForCompare(resolved))
	}
	if short, err := shortPathName(path); err == nil && short != "" {
		addForm(normalizeForCompare(short))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.roots = append(e.roots, root{placeholder: placeholder, forms: formList})
}

// LatchQtRoot registers the Qt install root the first time a path containing
// a `...\Qt\<M>.<N>.<P>\...` segment is observed, per spec §4.1 ("Qt install
// root (first `…\Qt\<M>.<N>.<P>\` seen in a path is latched)").
func (e *Environment) LatchQtRoot(path string) {
	e.mu.Lock()
	latched := e.qtLatched
	e.mu.Unlock()
	if latched {
		return
	}
	if root, ok := extractQtRoot(path); ok {
		e.addRoot(PlaceholderQtRoot, root)
		e.mu.Lock()
		e.qtLatched = true
		e.mu.Unlock()
	}
}

var qtRootPattern = regexp.MustCompile(`(?i)^(.*[\\/]Qt[\\/]\d+\.\d+\.\d+)[\\/]`)

func extractQtRoot(path string) (string, bool) {
	m := qtRootPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LatchLLVMRoot registers the LLVM install root derived from a compiler path
// ending in `\bin\clang-cl.exe`, per spec §4.1.
func (e *Environment) LatchLLVMRoot(compilerPath string) {
	e.mu.Lock()
	latched := e.llvmLatched
	e.mu.Unlock()
	if latched {
		return
	}
	lower := strings.ToLower(filepath.ToSlash(compilerPath))
	if !strings.HasSuffix(lower, "/bin/clang-cl.exe") && !strings.HasSuffix(lower, "/bin/clang-cl") {
		return
	}
	root := filepath.Dir(filepath.Dir(compilerPath))
	e.addRoot(PlaceholderLLVMRoot, root)
	e.mu.Lock()
	e.llvmLatched = true
	e.mu.Unlock()
}

// normalizeForCompare lower-cases a path and trims a trailing separator, for
// case-insensitive comparison per spec §4.1.
func normalizeForCompare(path string) string {
	clean := filepath.Clean(path)
	return strings.TrimRight(strings.ToLower(clean), `\/`)
}
