package whitelist

import (
	"fmt"
	"strings"
)

// MissingInputError lists mandatory inputs that were not supplied. It is
// returned before anything is parsed or written.
type MissingInputError struct {
	Fields []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("required arguments (%s) are missing", strings.Join(e.Fields, ", "))
}

// PatternTooLargeError reports a pattern whose own selector parameter
// "(pattern)" already reaches the parameter length limit. Length counts the
// two parentheses, so a pattern two characters shorter than Limit is already
// too large. The pattern still gets a group of its own unless strict limits
// are enabled.
type PatternTooLargeError struct {
	Pattern string
	Length  int
	Limit   int
}

func (e *PatternTooLargeError) Error() string {
	return fmt.Sprintf("pattern %q (%d characters) renders a %d character selector parameter including its parentheses, which must stay below the limit of %d",
		truncate(e.Pattern, 64), len(e.Pattern), e.Length, e.Limit)
}

// InvalidPatternError reports a pattern that cannot be placed in a location
// selector without corrupting the generated file.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid path pattern %q: %s", truncate(e.Pattern, 64), e.Reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
