package frontend

import (
	"strings"

	"github.com/clcache-go/clcache/internal/cmdline"
)

// MocFrontend discovers includes from a Makefile-style dependency file
// (`--output-dep-file`) rather than from compiler stdout, per spec §2 ("The
// moc-specific variant differs only in how it extracts included files (from
// a dependency file instead of compiler stdout)").
type MocFrontend struct{}

func (MocFrontend) Classify(tokens []string) cmdline.Classification {
	result := cmdline.Parse(tokens, cmdline.MocOptionTable)

	if len(result.InputFiles) == 0 {
		return cmdline.Classification{Kind: cmdline.KindNoSource, Options: result.Options}
	}
	if result.Options.Has("E") {
		return cmdline.Classification{Kind: cmdline.KindPreprocessing, Options: result.Options}
	}

	source := result.InputFiles[0]
	outputPath := result.Options.Last("o")
	if outputPath == "" {
		outputPath = strings.TrimSuffix(source, ".h") + ".moc"
	}

	return cmdline.Classification{
		Kind:        cmdline.KindNormal,
		Options:     result.Options,
		Sources:     []string{source},
		ObjectPaths: []string{outputPath},
		Parallelism: 1,
	}
}

func (MocFrontend) InjectIncludeDump(originalArgs []string, depFilePath string) []string {
	for _, a := range originalArgs {
		if a == "--output-dep-file" {
			return originalArgs
		}
	}
	args := append([]string{}, originalArgs...)
	args = append(args, "--output-dep-file", "--dep-file-path", depFilePath)
	return args
}

func (MocFrontend) ExtractIncludes(_ string, depFileContents string, _ bool) ([]string, string) {
	return parseMakeDepFile(depFileContents), ""
}

func (MocFrontend) CanonicalizeArtifact() bool {
	return true
}

// parseMakeDepFile extracts the dependency list from a Makefile-style
// fragment of the form "target: dep1 dep2 \\\n  dep3 dep4", stripping the
// target and line-continuation backslashes.
func parseMakeDepFile(contents string) []string {
	joined := strings.ReplaceAll(contents, "\\\n", " ")
	colon := strings.IndexByte(joined, ':')
	if colon < 0 {
		return nil
	}
	fields := strings.Fields(joined[colon+1:])
	seen := make(map[string]bool, len(fields))
	var deps []string
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		deps = append(deps, f)
	}
	return deps
}
