package cmdline

import "strings"

// Shape describes how an option's value (if any) is attached to its token,
// per spec §4.8's enumerated option shapes.
type Shape int

const (
	// ShapeFlag is a valueless switch: "/Name".
	ShapeFlag Shape = iota
	// ShapeGluedRequired requires a glued value: "/Name<value>".
	ShapeGluedRequired
	// ShapeGluedOptional accepts an optional glued value: "/Name[value]".
	ShapeGluedOptional
	// ShapeGluedOrSeparate accepts either a glued or a separate-token value:
	// "/Name[ ]value".
	ShapeGluedOrSeparate
	// ShapeSeparate requires the value as the following token: "/Name value".
	ShapeSeparate
	// ShapeGNUStyle is the "-name"/"--name" convention with "[= ]<value>"
	// variants, used by moc.
	ShapeGNUStyle
)

// OptionSpec declares one recognized option name and how its value (if any)
// attaches to the token.
type OptionSpec struct {
	Name  string
	Shape Shape
	// Aliases are alternate spellings that map to Name, per spec §4.8
	// ("imsvc, external:I alias to I").
	Aliases []string
}

// Table is a declared set of recognized options, indexed by name and alias
// for quick lookup during classification.
type Table struct {
	specs     map[string]OptionSpec
	gnuPrefix bool
}

// NewTable builds a lookup table from specs, resolving aliases to their
// canonical name.
func NewTable(specs []OptionSpec, gnuPrefix bool) *Table {
	t := &Table{specs: make(map[string]OptionSpec), gnuPrefix: gnuPrefix}
	for _, spec := range specs {
		t.specs[spec.Name] = spec
		for _, alias := range spec.Aliases {
			t.specs[alias] = spec
		}
	}
	return t
}

// Options is the parsed result: canonical option name to all collected
// values (zero values recorded as empty strings for flags), per spec §4.8
// ("Options are collected into name -> [values]").
type Options map[string][]string

// Has reports whether name was present at all.
func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// Last returns the most recently collected value for name, or "" if absent.
func (o Options) Last(name string) string {
	values := o[name]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// ParseResult is the analyzer's stage-two output: classified options plus
// the remaining positional tokens (the input file list), per spec §4.8.
type ParseResult struct {
	Options    Options
	InputFiles []string
}

// Parse classifies tokens against table, per spec §4.8's two option-prefix
// conventions (cl's "/Name..." and moc's GNU-style "-name"/"--name...").
func Parse(tokens []string, table *Table) ParseResult {
	result := ParseResult{Options: make(Options)}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		if table.gnuPrefix && (strings.HasPrefix(token, "--") || strings.HasPrefix(token, "-")) {
			consumed := parseGNUToken(token, tokens, i, table, result.Options)
			i += consumed
			continue
		}

		if strings.HasPrefix(token, "/") {
			consumed := parseSlashToken(token, tokens, i, table, result.Options)
			i += consumed
			continue
		}

		result.InputFiles = append(result.InputFiles, token)
	}

	return result
}

// parseSlashToken parses a single "/..."-prefixed token (and possibly the
// following token, for ShapeSeparate/ShapeGluedOrSeparate), returning how
// many extra tokens beyond the current one were consumed.
func parseSlashToken(token string, tokens []string, i int, table *Table, options Options) int {
	body := token[1:]

	// Longest-prefix match against declared option names, so that e.g. "Fo"
	// matches before a shorter unrelated prefix would.
	var spec OptionSpec
	var name string
	found := false
	for candidate, s := range table.specs {
		// A valueless flag only matches its exact spelling, so that e.g.
		// "/EHsc" is not taken for "/E".
		if s.Shape == ShapeFlag && body != candidate {
			continue
		}
		if strings.HasPrefix(body, candidate) {
			if !found || len(candidate) > len(name) {
				name, spec, found = candidate, s, true
			}
		}
	}
	if !found {
		options[body] = append(options[body], "")
		return 0
	}

	rest := body[len(name):]
	switch spec.Shape {
	case ShapeFlag:
		options[spec.Name] = append(options[spec.Name], "")
		return 0
	case ShapeGluedRequired, ShapeGluedOptional:
		options[spec.Name] = append(options[spec.Name], rest)
		return 0
	case ShapeGluedOrSeparate:
		if rest != "" {
			options[spec.Name] = append(options[spec.Name], rest)
			return 0
		}
		if i+1 < len(tokens) {
			options[spec.Name] = append(options[spec.Name], tokens[i+1])
			return 1
		}
		options[spec.Name] = append(options[spec.Name], "")
		return 0
	case ShapeSeparate:
		if i+1 < len(tokens) {
			options[spec.Name] = append(options[spec.Name], tokens[i+1])
			return 1
		}
		options[spec.Name] = append(options[spec.Name], "")
		return 0
	default:
		options[spec.Name] = append(options[spec.Name], rest)
		return 0
	}
}

// parseGNUToken parses a single "-name"/"--name" token with an optional
// "=value" or space-separated value, moc's convention.
func parseGNUToken(token string, tokens []string, i int, table *Table, options Options) int {
	body := strings.TrimLeft(token, "-")

	if eq := strings.IndexByte(body, '='); eq >= 0 {
		name, value := body[:eq], body[eq+1:]
		canonical := name
		if spec, ok := table.specs[name]; ok {
			canonical = spec.Name
		}
		options[canonical] = append(options[canonical], value)
		return 0
	}

	spec, ok := table.specs[body]
	if !ok {
		options[body] = append(options[body], "")
		return 0
	}

	if spec.Shape == ShapeFlag {
		options[spec.Name] = append(options[spec.Name], "")
		return 0
	}

	if i+1 < len(tokens) {
		options[spec.Name] = append(options[spec.Name], tokens[i+1])
		return 1
	}
	options[spec.Name] = append(options[spec.Name], "")
	return 0
}
