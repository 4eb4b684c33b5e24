package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForExecutableDispatchesByBaseName(t *testing.T) {
	assert.IsType(t, MocFrontend{}, ForExecutable(`C:\Qt\6.5.2\bin\moc.exe`))
	assert.IsType(t, MocFrontend{}, ForExecutable(`/usr/lib/qt6/libexec/moc`))
	assert.IsType(t, CLFrontend{}, ForExecutable(`C:\VS\VC\Tools\MSVC\bin\cl.exe`))
	assert.IsType(t, CLFrontend{}, ForExecutable(`/usr/bin/clang-cl`))
}

func TestCLFrontendInjectIncludeDumpAddsShowIncludesOnce(t *testing.T) {
	front := CLFrontend{}

	withFlag := front.InjectIncludeDump([]string{"/c", "main.cpp"}, "")
	assert.Contains(t, withFlag, "/showIncludes")
	assert.Len(t, withFlag, 3)

	alreadyHasFlag := front.InjectIncludeDump([]string{"/c", "/showIncludes", "main.cpp"}, "")
	assert.Equal(t, []string{"/c", "/showIncludes", "main.cpp"}, alreadyHasFlag)
}

func TestCLFrontendExtractIncludesParsesAndStripsLines(t *testing.T) {
	front := CLFrontend{}
	stdout := "main.cpp\n" +
		"Note: including file:  C:\\base\\header.h\n" +
		"Note: including file:   C:\\base\\deep\\other.h\n"

	includes, cleaned := front.ExtractIncludes(stdout, "", false)
	assert.Equal(t, []string{`C:\base\header.h`, `C:\base\deep\other.h`}, includes)
	assert.Equal(t, "main.cpp", cleaned)
}

func TestCLFrontendExtractIncludesKeepsLinesWhenUserRequestedShowIncludes(t *testing.T) {
	front := CLFrontend{}
	stdout := "Note: including file:  C:\\base\\header.h\n"

	includes, cleaned := front.ExtractIncludes(stdout, "", true)
	assert.Len(t, includes, 1)
	assert.Contains(t, cleaned, "Note: including file:")
}

func TestCLFrontendCanonicalizeArtifactIsTrue(t *testing.T) {
	assert.True(t, CLFrontend{}.CanonicalizeArtifact())
}

func TestMocFrontendClassifyNormalInvocation(t *testing.T) {
	front := MocFrontend{}
	classification := front.Classify([]string{"widget.h", "-o", "moc_widget.cpp"})

	assert.Equal(t, []string{"widget.h"}, classification.Sources)
	assert.Equal(t, []string{"moc_widget.cpp"}, classification.ObjectPaths)
	assert.Equal(t, 1, classification.Parallelism)
}

func TestMocFrontendClassifyDefaultsOutputPathFromSource(t *testing.T) {
	front := MocFrontend{}
	classification := front.Classify([]string{"widget.h"})
	assert.Equal(t, []string{"widget.moc"}, classification.ObjectPaths)
}

func TestMocFrontendInjectIncludeDumpAddsDepFileFlagsOnce(t *testing.T) {
	front := MocFrontend{}

	args := front.InjectIncludeDump([]string{"widget.h"}, "/tmp/widget.d")
	assert.Contains(t, args, "--output-dep-file")
	assert.Contains(t, args, "--dep-file-path")
	assert.Contains(t, args, "/tmp/widget.d")

	already := front.InjectIncludeDump([]string{"widget.h", "--output-dep-file"}, "/tmp/widget.d")
	assert.Equal(t, []string{"widget.h", "--output-dep-file"}, already)
}

func TestMocFrontendExtractIncludesParsesDepFileAndDedupes(t *testing.T) {
	front := MocFrontend{}
	depFile := "moc_widget.cpp: widget.h \\\n  base.h widget.h\n"

	includes, cleaned := front.ExtractIncludes("ignored stdout", depFile, false)
	assert.Equal(t, []string{"widget.h", "base.h"}, includes)
	assert.Equal(t, "", cleaned)
}

func TestMocFrontendExtractIncludesNoColonReturnsNil(t *testing.T) {
	front := MocFrontend{}
	includes, _ := front.ExtractIncludes("", "no colon here", false)
	assert.Nil(t, includes)
}
