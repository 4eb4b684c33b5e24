package canon

import (
	"path/filepath"
	"strings"
)

// Canonicalize maps an absolute path to its placeholder-relative form,
// trying roots in the order they were registered: build dir, base dir, Conan
// home, venv root and the toolchain environment variables (all registered by
// New), then the Qt and LLVM roots in the order they were latched. The
// lazily latched Qt and LLVM roots are therefore tried after every root
// registered by New, not ahead of the venv and toolchain roots. Canonicalization never fails (spec
// §4.1): if no placeholder applies, the lower-cased original path is
// returned.
func (e *Environment) Canonicalize(absolutePath string) string {
	if absolutePath == "" {
		return absolutePath
	}

	e.LatchQtRoot(absolutePath)

	normalized := normalizeForCompare(absolutePath)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.roots {
		for _, form := range r.forms {
			if form == "" {
				continue
			}
			if normalized == form {
				return r.placeholder
			}
			if strings.HasPrefix(normalized, form+string(filepath.Separator)) ||
				strings.HasPrefix(normalized, form+"/") {
				rest := normalized[len(form):]
				return r.placeholder + rest
			}
		}
	}

	return strings.ToLower(absolutePath)
}

// Expand reverses Canonicalize, substituting the placeholder prefix (if any)
// with the corresponding root's literal path in its normalized (lower-cased)
// form. Unrecognized
// placeholders (or strings with no placeholder at all) are returned
// unchanged.
func (e *Environment) Expand(placeholderPath string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.roots {
		if strings.HasPrefix(placeholderPath, r.placeholder) {
			rest := placeholderPath[len(r.placeholder):]
			if len(r.forms) == 0 {
				continue
			}
			return r.forms[0] + rest
		}
	}
	return placeholderPath
}

// RewriteStreamLine canonicalizes or expands any absolute paths embedded
// within a single line of compiler stdout/stderr. cl.exe and moc.exe both
// emit diagnostics of the form "<path>(<line>): ..." or "Note: including
// file: <path>"; this performs a best-effort substitution anywhere in the
// line, not just at its start, since paths can appear mid-sentence in
// diagnostic text. Roots are applied in priority order, and for each root
// only the first occurrence of each of its forms (or of its placeholder,
// when expanding) is replaced.
func (e *Environment) RewriteStreamLine(line string, expand bool) string {
	e.mu.RLock()
	roots := make([]root, len(e.roots))
	copy(roots, e.roots)
	e.mu.RUnlock()

	lowerLine := strings.ToLower(line)
	if expand {
		for _, r := range roots {
			if idx := strings.Index(line, r.placeholder); idx >= 0 && len(r.forms) > 0 {
				line = line[:idx] + r.forms[0] + line[idx+len(r.placeholder):]
			}
		}
		return line
	}

	for _, r := range roots {
		for _, form := range r.forms {
			if form == "" {
				continue
			}
			idx := strings.Index(lowerLine, form)
			if idx < 0 {
				continue
			}
			line = line[:idx] + r.placeholder + line[idx+len(form):]
			lowerLine = strings.ToLower(line)
		}
	}
	return line
}

// RewriteSourceEmbeddedPaths substitutes #include "..." / #include <...>
// references and path-bearing comment lines in generated source (unity
// builds, moc output) whose path resolves under the base directory, per
// spec §4.1's second paragraph. This is what lets Content Hasher (§4.3)
// produce stable hashes for generated files across identical trees rooted
// at different absolute locations.
func (e *Environment) RewriteSourceEmbeddedPaths(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		line = e.includePattern.ReplaceAllStringFunc(line, func(match string) string {
			sub := e.includePattern.FindStringSubmatch(match)
			if sub == nil {
				return match
			}
			prefix, path, suffix := sub[1], sub[2], sub[3]
			canon := e.Canonicalize(path)
			if canon == strings.ToLower(path) {
				// No root applied; leave untouched to avoid corrupting
				// ordinary system header names like <vector>.
				return match
			}
			return prefix + canon + suffix
		})

		if sub := e.commentPathPattern.FindStringSubmatch(line); sub != nil {
			prefix, path := sub[1], sub[2]
			if canon := e.Canonicalize(path); canon != strings.ToLower(path) {
				line = prefix + canon + line[len(sub[0]):]
			}
		}

		lines[i] = line
	}
	return []byte(strings.Join(lines, "\n"))
}
