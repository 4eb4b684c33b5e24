// Package frontend implements the compiler-front-end dispatch named in spec
// §9's redesign note: "a compiler-front-end interface {classify,
// inject_include_dump, extract_includes, canonicalize_artifact} with two
// implementations [cl, moc]; the dispatcher chooses by executable name."
// cl.exe discovers its includes from `/showIncludes` lines printed to
// stdout; moc.exe discovers them from a `--output-dep-file` Makefile-style
// dependency file, per spec §2's data-flow description and §9's design
// note on the moc variant.
package frontend

import (
	"strings"

	"github.com/clcache-go/clcache/internal/cmdline"
)

// FrontEnd is the per-compiler-identity strategy the Cache Engine drives.
type FrontEnd interface {
	// Classify parses and classifies a raw argument list (already merged
	// with CL/_CL_ environment tokens for the cl front-end).
	Classify(tokens []string) cmdline.Classification

	// InjectIncludeDump returns the argument list to use when invoking the
	// real compiler on a full miss, with header-discovery forced on (spec
	// §4.9 step (f): "inject /showIncludes for cl, or --output-dep-file for
	// moc"). depFilePath is only consulted by front-ends that discover
	// includes from a file rather than stdout.
	InjectIncludeDump(originalArgs []string, depFilePath string) []string

	// ExtractIncludes parses the list of transitively included files from a
	// compiler invocation's raw captured stdout and/or dependency file
	// contents (whichever the front-end uses), returning the cleaned stdout
	// with discovery-only lines stripped (spec §4.9: "strip those lines from
	// the forwarded stdout unless the user asked for them").
	ExtractIncludes(stdout string, depFileContents string, userRequestedShowIncludes bool) (includes []string, cleanedStdout string)

	// CanonicalizeArtifact reports whether this front-end's source input
	// participates in the source-embedded path rewrite before hashing (spec
	// §4.1's second paragraph: unity builds and moc output both embed
	// absolute paths in generated text). The Cache Engine only applies
	// internal/canon's RewriteSourceEmbeddedPaths to a source hashed from
	// under the build directory when this also reports true.
	CanonicalizeArtifact() bool
}

// ForExecutable dispatches on the compiler executable's base name, per spec
// §9 ("the dispatcher chooses by executable name").
func ForExecutable(path string) FrontEnd {
	base := strings.ToLower(path[strings.LastIndexAny(path, `\/`)+1:])
	if strings.HasPrefix(base, "moc") {
		return MocFrontend{}
	}
	return CLFrontend{}
}
