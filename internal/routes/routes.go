// Package routes loads the list of allowed URL patterns and normalizes
// framework route rules into plain path prefixes.
package routes

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Stdin is the file name that makes LoadFile read from standard input.
const Stdin = "-"

var converterRe = regexp.MustCompile(`<[^>]+>`)

// Normalize strips converter placeholders such as "<int:id>" from each rule,
// drops the bare root and empty results, and removes duplicates keeping the
// first occurrence.
func Normalize(rules []string) []string {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		p := strings.TrimSpace(converterRe.ReplaceAllString(r, ""))
		if p == "" || p == "/" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Load reads patterns from r. Input starting with '[' is decoded as a JSON
// array of strings; anything else is read one pattern per line, with blank
// lines and '#' comments skipped. The result is normalized.
func Load(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rules []string
		if err := json.Unmarshal(trimmed, &rules); err != nil {
			return nil, fmt.Errorf("decode routes json: %w", err)
		}
		return Normalize(rules), nil
	}

	var rules []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			rules = append(rules, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan routes: %w", err)
	}
	return Normalize(rules), nil
}

// LoadFile loads patterns from path, or from stdin when path is "-".
func LoadFile(path string) ([]string, error) {
	if path == Stdin {
		return Load(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open routes file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
