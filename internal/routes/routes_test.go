package routes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{
		"/",
		"/user/<int:id>",
		"/static/<path:filename>",
		"/user/<name>",
		"<lang>",
		"/login",
		"/login",
		"  /health ",
	})
	assert.Equal(t, []string{"/user/", "/static/", "/login", "/health"}, got)
}

func TestNormalize_Empty(t *testing.T) {
	assert.Empty(t, Normalize(nil))
	assert.Empty(t, Normalize([]string{"/", "", "<x>"}))
}

func TestLoad_Lines(t *testing.T) {
	in := "# allowed paths\n/api/users\n\n/api/orders   # orders\n/health\n/api/users\n"
	got, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/users", "/api/orders", "/health"}, got)
}

func TestLoad_JSON(t *testing.T) {
	got, err := Load(strings.NewReader(`  ["/", "/item/<int:id>", "/about"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/item/", "/about"}, got)

	_, err = Load(strings.NewReader(`["/a", 3]`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.txt")
	require.NoError(t, os.WriteFile(path, []byte("/a\n/b\n"), 0o644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, got)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
