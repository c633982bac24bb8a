// Package sanitize cleans free-text run labels before they are stored in the
// run catalog. Labels arrive from CLI flags and MCP clients and are echoed
// back in terminal tables and tool results, so they are reduced to a single
// line of printable text without markup.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxLabelLength is the maximum number of runes kept in a label.
const MaxLabelLength = 80

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reBackticks matches runs of backticks.
	reBackticks = regexp.MustCompile("`+")
)

// Label sanitizes a run label:
//  1. Replace control characters (including newlines and tabs) with spaces
//  2. Strip XML/HTML tags and backticks
//  3. Collapse whitespace runs to one space and trim
//  4. Truncate to MaxLabelLength runes
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	s = reXMLTag.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if r := []rune(s); len(r) > MaxLabelLength {
		s = strings.TrimSpace(string(r[:MaxLabelLength]))
	}
	return s
}
