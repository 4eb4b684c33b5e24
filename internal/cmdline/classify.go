package cmdline

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Kind enumerates the classification outcomes from spec §4.8/§4.9: either
// the invocation is cacheable ("normal"), or it falls into one of the
// uncacheable shapes, each of which corresponds one-to-one with a miss
// reason counted by the stats accumulator (spec §4.11).
type Kind int

const (
	KindNormal Kind = iota
	KindPreprocessing
	KindExternalDebugInfo
	KindPrecompiledHeader
	KindLinking
	KindNoSource
	KindMultipleSourcesComplex
)

// Classification is the Analyzer's verdict for one invocation: its Kind,
// the (possibly CL/_CL_-extended) parsed options, the source files to
// compile, and — for cacheable invocations — the per-source output object
// paths, in the same order as Sources.
type Classification struct {
	Kind        Kind
	Options     Options
	Sources     []string
	ObjectPaths []string
	Parallelism int
}

// ClOptionTable is cl.exe's declared option surface (spec §4.8), restricted
// to the options the Analyzer must recognize to classify an invocation and
// locate its inputs/outputs; unrecognized switches are still collected
// (under their literal spelling) and forwarded untouched.
var ClOptionTable = NewTable([]OptionSpec{
	{Name: "c", Shape: ShapeFlag},
	{Name: "E", Shape: ShapeFlag},
	{Name: "EP", Shape: ShapeFlag},
	{Name: "P", Shape: ShapeFlag},
	{Name: "Zi", Shape: ShapeFlag},
	{Name: "ZI", Shape: ShapeFlag},
	{Name: "Z7", Shape: ShapeFlag},
	{Name: "Yc", Shape: ShapeGluedOptional},
	{Name: "Yu", Shape: ShapeGluedOptional},
	{Name: "link", Shape: ShapeFlag},
	{Name: "showIncludes", Shape: ShapeFlag},
	{Name: "Fo", Shape: ShapeGluedOptional},
	{Name: "Fp", Shape: ShapeGluedOptional},
	{Name: "Fi", Shape: ShapeGluedOptional},
	{Name: "Tc", Shape: ShapeGluedOptional},
	{Name: "Tp", Shape: ShapeGluedOptional},
	{Name: "I", Shape: ShapeGluedOrSeparate, Aliases: []string{"imsvc", "external:I"}},
	{Name: "MP", Shape: ShapeGluedOptional},
	{Name: "D", Shape: ShapeGluedOrSeparate},
	{Name: "nologo", Shape: ShapeFlag},
}, false)

// MocOptionTable is moc.exe's GNU-style option surface, per spec §4.8's
// "-name / --name (Qt/moc style)" shape.
var MocOptionTable = NewTable([]OptionSpec{
	{Name: "o", Shape: ShapeSeparate},
	{Name: "output-dep-file", Shape: ShapeFlag},
	{Name: "output-json", Shape: ShapeFlag},
	{Name: "i", Shape: ShapeFlag},
	{Name: "E", Shape: ShapeFlag},
}, true)

// sourceExtensions identifies compilable source tokens among the positional
// arguments; everything else positional (unlikely, but e.g. a stray object
// file on the link line) is ignored for object-path derivation.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".h": true, ".hpp": true,
}

// ClassifyCl classifies a cl.exe invocation's already-CL/_CL_-extended
// options against spec §4.8's uncacheable shapes, deriving output object
// paths for cacheable ones.
func ClassifyCl(result ParseResult) Classification {
	opts := result.Options

	if opts.Has("E") || opts.Has("EP") || opts.Has("P") {
		return Classification{Kind: KindPreprocessing, Options: opts}
	}
	if opts.Has("Zi") || opts.Has("ZI") {
		return Classification{Kind: KindExternalDebugInfo, Options: opts}
	}
	if opts.Has("Yc") || opts.Has("Yu") {
		return Classification{Kind: KindPrecompiledHeader, Options: opts}
	}
	if opts.Has("link") || !opts.Has("c") {
		return Classification{Kind: KindLinking, Options: opts}
	}

	var sources []string
	for _, f := range result.InputFiles {
		if sourceExtensions[strings.ToLower(filepath.Ext(f))] {
			sources = append(sources, f)
		}
	}
	if len(sources) == 0 {
		return Classification{Kind: KindNoSource, Options: opts}
	}
	if len(sources) > 1 && (opts.Has("Tp") || opts.Has("Tc")) {
		return Classification{Kind: KindMultipleSourcesComplex, Options: opts}
	}

	return Classification{
		Kind:        KindNormal,
		Options:     opts,
		Sources:     sources,
		ObjectPaths: deriveObjectPaths(sources, opts),
		Parallelism: parseParallelism(opts),
	}
}

// deriveObjectPaths computes the output .obj path for each source, per spec
// §4.8: "from /Fo file or directory, else per-input with .obj suffix".
func deriveObjectPaths(sources []string, opts Options) []string {
	fo := opts.Last("Fo")
	paths := make([]string, len(sources))

	isDirTarget := fo != "" && (strings.HasSuffix(fo, string(filepath.Separator)) || strings.HasSuffix(fo, "/"))

	for i, src := range sources {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".obj"
		switch {
		case fo == "":
			paths[i] = strings.TrimSuffix(src, filepath.Ext(src)) + ".obj"
		case isDirTarget:
			paths[i] = filepath.Join(fo, base)
		case len(sources) == 1:
			paths[i] = fo
		default:
			// A single glued /Fo value with multiple sources and no trailing
			// separator still means "directory", per cl.exe's own behavior.
			paths[i] = filepath.Join(fo, base)
		}
	}
	return paths
}

// parseParallelism resolves /MP[N], per spec §4.9: "last occurrence wins;
// bare /MP uses logical CPU count; no /MP means sequential".
func parseParallelism(opts Options) int {
	values := opts["MP"]
	if len(values) == 0 {
		return 1
	}
	last := values[len(values)-1]
	if last == "" {
		return runtime.NumCPU()
	}
	if n, err := strconv.Atoi(last); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// MergeEnvironmentArgs prepends CL-variable tokens and appends _CL_-variable
// tokens to the user's argument list, per spec §4.8 ("the CL and _CL_
// environment variables are tokenized and prepended/appended to the user
// command line before classification").
func MergeEnvironmentArgs(cl, underscoreCL, userArgs []string) []string {
	merged := make([]string, 0, len(cl)+len(underscoreCL)+len(userArgs))
	merged = append(merged, cl...)
	merged = append(merged, userArgs...)
	merged = append(merged, underscoreCL...)
	return merged
}
