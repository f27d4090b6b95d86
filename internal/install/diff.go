package install

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff from the installed version of each file to the
// new contents. Unchanged files contribute nothing.
func Diff(ctx context.Context, inst Installer, files []File) (string, error) {
	var b strings.Builder
	for _, f := range files {
		cur, err := inst.Current(ctx, f.Name)
		if err != nil {
			return "", err
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(cur)),
			B:        difflib.SplitLines(string(f.Data)),
			FromFile: "a/" + f.Name,
			ToFile:   "b/" + f.Name,
			Context:  3,
		})
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
