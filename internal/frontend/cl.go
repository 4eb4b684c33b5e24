package frontend

import (
	"bufio"
	"strings"

	"github.com/clcache-go/clcache/internal/cmdline"
)

// showIncludesPrefix is the localized-but-typically-English marker cl.exe
// prints before each included header's absolute path when /showIncludes is
// active: "Note: including file:  <path>".
const showIncludesPrefix = "Note: including file:"

// CLFrontend discovers includes from cl.exe's own /showIncludes stdout
// output, per spec §2/§4.9.
type CLFrontend struct{}

func (CLFrontend) Classify(tokens []string) cmdline.Classification {
	result := cmdline.Parse(tokens, cmdline.ClOptionTable)
	return cmdline.ClassifyCl(result)
}

func (CLFrontend) InjectIncludeDump(originalArgs []string, _ string) []string {
	for _, a := range originalArgs {
		if a == "/showIncludes" {
			return originalArgs
		}
	}
	return append(append([]string{}, originalArgs...), "/showIncludes")
}

func (CLFrontend) ExtractIncludes(stdout string, _ string, userRequestedShowIncludes bool) ([]string, string) {
	var includes []string
	var cleaned strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, showIncludesPrefix); idx >= 0 {
			path := strings.TrimSpace(line[idx+len(showIncludesPrefix):])
			if path != "" {
				includes = append(includes, path)
			}
			if userRequestedShowIncludes {
				cleaned.WriteString(line)
				cleaned.WriteByte('\n')
			}
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	return includes, strings.TrimSuffix(cleaned.String(), "\n")
}

func (CLFrontend) CanonicalizeArtifact() bool {
	return true
}
