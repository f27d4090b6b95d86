package whitelist

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"ngxwhitelist/internal/nginx"
)

const (
	// WhitelistFileName and SharedFileName are the fixed artifact names.
	WhitelistFileName = "include.whitelist"
	SharedFileName    = "shared.conf"
	// DefaultIncludeDir is where nginx looks for the artifacts by default.
	DefaultIncludeDir = "/etc/nginx"
)

// Options tunes a generation run. The zero value is usable.
type Options struct {
	// Limit caps the length of one selector parameter. Defaults to DefaultLimit.
	Limit int
	// IncludePath is the path written into every include directive.
	// Defaults to DefaultIncludeDir/SharedFileName.
	IncludePath string
	// DenyStatus is returned by the default-deny location. Defaults to 404.
	DenyStatus int
	// StrictLimit rejects patterns that do not fit the limit instead of
	// emitting an over-limit group.
	StrictLimit bool
	Logger      *slog.Logger
}

// Result is the output of one run.
type Result struct {
	Shared           []byte
	Whitelist        []byte
	Groups           []Group
	SharedDirectives int
	// Warnings holds non-fatal problems, currently *PatternTooLargeError.
	Warnings []error
}

// IncludePathFor returns the include path for artifacts installed in dir.
func IncludePathFor(dir string) string {
	if dir == "" {
		dir = DefaultIncludeDir
	}
	return path.Join(dir, SharedFileName)
}

// Generate turns the source config and the allowed patterns into the
// shared-directives file and the whitelist-locations file. It performs no
// I/O and keeps no state between calls.
func Generate(source []byte, patterns []string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		return nil, &MissingInputError{Fields: []string{"nginx-config"}}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	includePath := opts.IncludePath
	if includePath == "" {
		includePath = IncludePathFor("")
	}

	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	if uniq := dedupe(patterns); len(uniq) != len(patterns) {
		logger.Debug("duplicate_patterns_dropped", slog.Int("dropped", len(patterns)-len(uniq)))
		patterns = uniq
	}

	cfg, err := nginx.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	shared := ExtractRootDirectives(cfg)
	if len(shared) == 0 {
		logger.Warn("root_location_missing", slog.String("hint", "no http/server/location / block found, shared file will be empty"))
	}

	groups := Pack(patterns, limit)
	res := &Result{Groups: groups, SharedDirectives: len(shared)}
	for _, w := range Oversized(groups, limit) {
		if opts.StrictLimit {
			return nil, w
		}
		logger.Warn("pattern_over_limit",
			slog.String("pattern", truncate(w.Pattern, 64)),
			slog.Int("length", w.Length),
			slog.Int("limit", w.Limit),
		)
		res.Warnings = append(res.Warnings, w)
	}

	trees := Assemble(shared, groups, includePath, opts.DenyStatus)

	sharedText, err := nginx.Serialize(trees.Shared)
	if err != nil {
		return nil, fmt.Errorf("serialize shared directives: %w", err)
	}
	res.Shared = []byte(FixConditionalQuotes(string(sharedText)))

	res.Whitelist, err = nginx.Serialize(trees.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("serialize whitelist: %w", err)
	}

	logger.Info("whitelist_generated",
		slog.Int("patterns", len(patterns)),
		slog.Int("groups", len(groups)),
		slog.Int("shared_directives", len(shared)),
		slog.Int("limit", limit),
	)
	return res, nil
}

// ValidatePatterns rejects patterns that would break out of a location
// selector. The bare root is rejected because "~ (/)" matches everything.
func ValidatePatterns(patterns []string) error {
	var errs []error
	for _, p := range patterns {
		if reason := patternProblem(p); reason != "" {
			errs = append(errs, &InvalidPatternError{Pattern: p, Reason: reason})
		}
	}
	return errors.Join(errs...)
}

func patternProblem(p string) string {
	switch {
	case p == "":
		return "pattern is empty"
	case p == RootSelector:
		return "the bare root is served by the exact-match location"
	case strings.ContainsAny(p, " \t\r\n"):
		return "pattern must not contain whitespace"
	case strings.ContainsAny(p, "{};"):
		return "pattern must not contain '{', '}' or ';'"
	case strings.ContainsAny(p, `"'`):
		return "pattern must not contain quotes"
	case strings.ContainsAny(p, "<>"):
		return "route placeholders like <id> must be stripped first"
	}
	return ""
}

// dedupe keeps the first occurrence of every pattern.
func dedupe(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
