package canon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeSubstitutesBaseDirPrefix(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	nested := filepath.Join(base, "src", "main.cpp")
	got := env.Canonicalize(nested)

	want := PlaceholderBaseDir + string(filepath.Separator) + filepath.Join("src", "main.cpp")
	assert.Equal(t, want, got)
}

func TestCanonicalizeIsCaseInsensitive(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	nested := filepath.Join(base, "SRC", "Main.cpp")
	got := env.Canonicalize(nested)
	assert.Contains(t, got, PlaceholderBaseDir)
}

func TestCanonicalizeFallsBackToLowercaseWhenNoRootMatches(t *testing.T) {
	env := New("", "")
	got := env.Canonicalize(`C:\Somewhere\Else\file.h`)
	assert.Equal(t, `c:\somewhere\else\file.h`, got)
}

func TestCanonicalizeEmptyPathReturnsEmpty(t *testing.T) {
	env := New("", "")
	assert.Equal(t, "", env.Canonicalize(""))
}

func TestExpandReversesCanonicalize(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	nested := filepath.Join(base, "src", "main.cpp")
	canon := env.Canonicalize(nested)
	expanded := env.Expand(canon)

	assert.Equal(t, normalizeForCompare(nested), normalizeForCompare(expanded))
}

func TestBuildDirTakesPriorityOverBaseDir(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build")
	baseDir := root

	env := New(baseDir, buildDir)

	got := env.Canonicalize(filepath.Join(buildDir, "obj", "x.obj"))
	assert.Contains(t, got, PlaceholderBuildDir)
	assert.NotContains(t, got, PlaceholderBaseDir)
}

func TestLatchQtRootAppliesToSubsequentPaths(t *testing.T) {
	env := New("", "")
	qtPath := filepath.FromSlash("/opt/Qt/6.5.2/gcc_64/include/QtCore/qobject.h")
	env.LatchQtRoot(qtPath)

	got := env.Canonicalize(qtPath)
	assert.Contains(t, got, PlaceholderQtRoot)
}

func TestLatchQtRootOnlyLatchesOnce(t *testing.T) {
	env := New("", "")
	first := filepath.FromSlash("/opt/Qt/6.5.2/gcc_64/include")
	second := filepath.FromSlash("/other/Qt/5.15.2/gcc_64/include")

	env.LatchQtRoot(first)
	env.LatchQtRoot(second)

	got := env.Canonicalize(second)
	assert.NotContains(t, got, PlaceholderQtRoot)
}

func TestLatchLLVMRootOnlyAppliesToClangCL(t *testing.T) {
	env := New("", "")
	env.LatchLLVMRoot(filepath.FromSlash("/usr/lib/llvm-16/bin/clang-cl"))

	got := env.Canonicalize(filepath.FromSlash("/usr/lib/llvm-16/lib/clang/16/include/stddef.h"))
	assert.Contains(t, got, PlaceholderLLVMRoot)
}

func TestLatchLLVMRootIgnoresNonClangCLCompiler(t *testing.T) {
	env := New("", "")
	env.LatchLLVMRoot(filepath.FromSlash("/usr/bin/cl.exe"))

	got := env.Canonicalize(filepath.FromSlash("/usr/include/stddef.h"))
	assert.NotContains(t, got, PlaceholderLLVMRoot)
}

func TestRewriteStreamLineCanonicalizesEmbeddedPath(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	path := filepath.Join(base, "src", "main.cpp")
	line := "Note: including file: " + path
	rewritten := env.RewriteStreamLine(line, false)
	assert.Contains(t, rewritten, PlaceholderBaseDir)
	assert.NotContains(t, rewritten, base)
}

func TestRewriteStreamLineExpandsPlaceholder(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	line := PlaceholderBaseDir + string(filepath.Separator) + "src" + string(filepath.Separator) + "main.cpp"
	rewritten := env.RewriteStreamLine(line, true)
	assert.NotContains(t, rewritten, PlaceholderBaseDir)
}

func TestRewriteSourceEmbeddedPathsRewritesIncludeUnderBaseDir(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	header := filepath.ToSlash(filepath.Join(base, "include", "widget.h"))
	content := []byte(`#include "` + header + `"` + "\n#include <vector>\n")

	rewritten := env.RewriteSourceEmbeddedPaths(content)
	assert.Contains(t, string(rewritten), PlaceholderBaseDir)
	assert.Contains(t, string(rewritten), "#include <vector>")
}

func TestRewriteSourceEmbeddedPathsRewritesCommentLine(t *testing.T) {
	base := t.TempDir()
	env := New(base, "")

	header := filepath.ToSlash(filepath.Join(base, "generated", "widget.h"))
	content := []byte("// " + header + "\nint x;\n")

	rewritten := env.RewriteSourceEmbeddedPaths(content)
	assert.Contains(t, string(rewritten), PlaceholderBaseDir)
	assert.NotContains(t, string(rewritten), base)
	assert.Contains(t, string(rewritten), "int x;")
}

func TestRewriteSourceEmbeddedPathsLeavesUnrootedCommentLineUntouched(t *testing.T) {
	env := New("", "")

	content := []byte("// just a regular comment\n")
	rewritten := env.RewriteSourceEmbeddedPaths(content)
	assert.Equal(t, string(content), string(rewritten))
}
