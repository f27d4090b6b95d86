package whitelist

import (
	"strings"

	"ngxwhitelist/internal/nginx"
)

// The serializer quotes any value holding braces or semicolons, so a
// pre-rendered conditional comes out as
//
//	if ($cond) "{ key value;
//	 }";
//
// FixConditionalQuotes repairs exactly two defects in that output:
//
//  1. on a line starting with the condition marker, `) "{` becomes `) {`
//  2. the line holding only `}";` that closes a conditional repaired by (1)
//     becomes `}`
//
// A `}";` line outside such a conditional, or one that ends a quoted value
// inside its body, is a literal and is left alone. The pass runs to a
// fixpoint, so applying it again is a no-op. Drop it once the serializer
// learns to emit rendered conditionals unquoted.
func FixConditionalQuotes(text string) string {
	for {
		fixed := fixQuotesOnce(text)
		if fixed == text {
			return fixed
		}
		text = fixed
	}
}

const (
	openDefect  = `) "{`
	closeDefect = `}";`
)

func fixQuotesOnce(text string) string {
	lines := strings.Split(text, "\n")
	var (
		open   bool
		quotes int // unescaped '"' seen inside the open conditional's body
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case open && trimmed == closeDefect && quotes%2 == 0:
			lines[i] = strings.Replace(line, closeDefect, "}", 1)
			open = false
		case open:
			quotes += countQuotes(line)
		case nginx.HasConditionKey(trimmed) && strings.Contains(line, openDefect):
			at := strings.Index(line, openDefect)
			lines[i] = line[:at] + ") {" + line[at+len(openDefect):]
			open, quotes = true, countQuotes(line[at+len(openDefect):])
		}
	}
	return strings.Join(lines, "\n")
}

func countQuotes(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			n++
		}
	}
	return n
}
