// Package cmdline implements the Command-Line Analyzer (spec §4.8): a
// tokenizer that replays the platform's own command-line quoting rules,
// response-file expansion with BOM-driven encoding detection, and a typed
// option-table classifier. There is no teacher or pack precedent for MSVC's
// specific backslash/quote convention, so the tokenizer itself is a from-
// scratch implementation (see DESIGN.md); response-file decoding reuses
// golang.org/x/text's BOM-aware UTF-16 decoders the way the teacher
// codebase reaches for x/text-adjacent packages for encoding concerns
// elsewhere in the pack.
package cmdline

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

// maxResponseFileDepth bounds recursive @file expansion to avoid a cycle of
// response files referencing one another from hanging the analyzer.
const maxResponseFileDepth = 10

// Tokenize splits args into command-line tokens following the Windows
// CreateProcess convention: backslashes are literal unless they immediately
// precede a double quote, in which case pairs of backslashes collapse to
// one backslash per pair and an odd trailing backslash escapes the quote;
// unescaped double quotes toggle whether whitespace splits tokens.
// Response-file arguments (@file) are expanded in place, recursively.
func Tokenize(line string, readResponseFile func(path string) (string, error)) ([]string, error) {
	return tokenize(line, readResponseFile, 0)
}

func tokenize(line string, readResponseFile func(path string) (string, error), depth int) ([]string, error) {
	raw := splitRaw(line)

	var tokens []string
	for _, t := range raw {
		if strings.HasPrefix(t, "@") && len(t) > 1 {
			if depth >= maxResponseFileDepth {
				return nil, errors.Errorf("response file nesting exceeds %d levels", maxResponseFileDepth)
			}
			path := strings.Trim(t[1:], `"`)
			contents, err := readResponseFile(path)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to read response file %q", path)
			}
			expanded, err := tokenize(contents, readResponseFile, depth+1)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, expanded...)
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// splitRaw performs the quote/backslash-aware whitespace split, without
// response-file expansion.
func splitRaw(line string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	haveToken := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\\':
			// Count the run of backslashes.
			j := i
			for j < len(runes) && runes[j] == '\\' {
				j++
			}
			count := j - i
			if j < len(runes) && runes[j] == '"' {
				// Each pair of backslashes yields one literal backslash; an
				// odd backslash escapes the following quote.
				current.WriteString(strings.Repeat(`\`, count/2))
				haveToken = true
				if count%2 == 1 {
					current.WriteByte('"')
					i = j
				} else {
					i = j - 1
				}
			} else {
				current.WriteString(strings.Repeat(`\`, count))
				haveToken = true
				i = j - 1
			}
		case r == '"':
			inQuotes = !inQuotes
			haveToken = true
		case isSpace(r) && !inQuotes:
			if haveToken {
				tokens = append(tokens, current.String())
				current.Reset()
				haveToken = false
			}
		default:
			current.WriteRune(r)
			haveToken = true
		}
	}
	if haveToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// DecodeResponseFile sniffs a response file's byte-order-mark and decodes it
// to a UTF-8 string, per spec §4.8 ("BOM-driven encoding detection
// (UTF-32 BE/LE, UTF-16 BE/LE, else UTF-8)"). UTF-32 has no decoder in the
// x/text package, so those two cases are handled directly.
func DecodeResponseFile(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return decodeUTF32(data[4:], true)
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return decodeUTF32(data[4:], false)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data, unicode.BigEndian)
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data, unicode.LittleEndian)
	default:
		return string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})), nil
	}
}

func decodeUTF16(data []byte, endian unicode.Endianness) (string, error) {
	decoder := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()
	decoded, err := decoder.Bytes(data)
	if err != nil {
		return "", errors.Wrap(err, "unable to decode UTF-16 response file")
	}
	return string(decoded), nil
}

func decodeUTF32(data []byte, bigEndian bool) (string, error) {
	if len(data)%4 != 0 {
		return "", errors.New("truncated UTF-32 response file")
	}
	var builder strings.Builder
	for i := 0; i+4 <= len(data); i += 4 {
		var codepoint uint32
		if bigEndian {
			codepoint = uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		} else {
			codepoint = uint32(data[i+3])<<24 | uint32(data[i+2])<<16 | uint32(data[i+1])<<8 | uint32(data[i])
		}
		builder.WriteRune(rune(codepoint))
	}
	return builder.String(), nil
}
