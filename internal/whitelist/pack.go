package whitelist

import "strings"

const (
	// DefaultLimit is nginx's practical cap on a single directive parameter.
	DefaultLimit = 4000
	// Delimiter joins patterns inside one alternation.
	Delimiter = "|"
)

// Group is an ordered run of patterns rendered into one location selector.
type Group []string

// Param renders the selector parameter "(a|b|c)".
func (g Group) Param() string {
	return "(" + strings.Join(g, Delimiter) + ")"
}

// Selector renders the full regex location selector "~ (a|b|c)".
func (g Group) Selector() string {
	return "~ " + g.Param()
}

// Pack splits patterns into consecutive groups in a single greedy pass. A
// pattern joins the current group only while the group's rendered parameter,
// including the new pattern, stays below limit; otherwise the current group
// is closed first. Order is never changed and patterns are never split, so a
// pattern longer than limit ends up alone in an over-limit group.
func Pack(patterns []string, limit int) []Group {
	var (
		groups []Group
		cur    Group
		curLen int // length of strings.Join(cur, Delimiter)
	)
	for _, p := range patterns {
		next := len(p)
		if len(cur) > 0 {
			next = curLen + len(Delimiter) + len(p)
			if paramLen(next) >= limit {
				groups = append(groups, cur)
				cur, next = nil, len(p)
			}
		}
		cur = append(cur, p)
		curLen = next
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// Oversized returns one error per group whose single pattern alone already
// renders a parameter "(pattern)" of limit characters or more. This is the
// same measure Pack uses, so every group Pack could not keep below limit is
// reported.
func Oversized(groups []Group, limit int) []*PatternTooLargeError {
	var out []*PatternTooLargeError
	for _, g := range groups {
		if len(g) != 1 {
			continue
		}
		if n := paramLen(len(g[0])); n >= limit {
			out = append(out, &PatternTooLargeError{Pattern: g[0], Length: n, Limit: limit})
		}
	}
	return out
}

func paramLen(joined int) int {
	return joined + len("()")
}
