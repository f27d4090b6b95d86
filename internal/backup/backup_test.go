package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ngxwhitelist/internal/install"
)

var names = []string{"include.whitelist", "shared.conf"}

func setup(t *testing.T) (*Manager, *install.LocalInstaller) {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "backups"), 0)
	require.NoError(t, err)
	return m, install.NewLocalInstaller(t.TempDir(), nil)
}

func TestSnapshot_NothingInstalled(t *testing.T) {
	m, inst := setup(t)

	info, err := m.Snapshot(context.Background(), inst, names)
	require.NoError(t, err)
	assert.Nil(t, info)

	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	m, inst := setup(t)
	ctx := context.Background()

	files := []install.File{
		{Name: "include.whitelist", Data: []byte("location = / {\n    include /etc/nginx/shared.conf;\n}\n")},
		{Name: "shared.conf", Data: []byte("proxy_pass http://app;\n")},
	}
	require.NoError(t, inst.Install(ctx, files))

	info, err := m.Snapshot(ctx, inst, names)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.FileExists(t, info.Path)
	assert.Positive(t, info.Size)

	got, err := m.Load(info.Name)
	require.NoError(t, err)
	assert.Equal(t, files, got)

	latest, err := m.Latest()
	require.NoError(t, err)
	assert.Equal(t, info.Name, latest)
}

func TestSnapshot_PartialInstall(t *testing.T) {
	m, inst := setup(t)
	ctx := context.Background()
	require.NoError(t, inst.Install(ctx, []install.File{{Name: "shared.conf", Data: []byte("x;\n")}}))

	info, err := m.Snapshot(ctx, inst, names)
	require.NoError(t, err)

	got, err := m.Load(info.Name)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shared.conf", got[0].Name)
}

func TestList_NewestFirst(t *testing.T) {
	m, inst := setup(t)
	ctx := context.Background()
	require.NoError(t, inst.Install(ctx, []install.File{{Name: "shared.conf", Data: []byte("x;\n")}}))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		m.now = func() time.Time { return at }
		_, err := m.Snapshot(ctx, inst, names)
		require.NoError(t, err)
	}

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
	assert.True(t, list[1].CreatedAt.After(list[2].CreatedAt))
}

func TestCleanOld(t *testing.T) {
	m, inst := setup(t)
	ctx := context.Background()
	require.NoError(t, inst.Install(ctx, []install.File{{Name: "shared.conf", Data: []byte("x;\n")}}))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	_, err := m.Snapshot(ctx, inst, names)
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	_, err = m.Snapshot(ctx, inst, names)
	require.NoError(t, err)

	assert.Equal(t, 1, m.CleanOld())
	list, err := m.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	m, _ := setup(t)
	for _, name := range []string{"../etc/passwd", "whitelist-x/../y.tar.gz", "random.txt"} {
		_, err := m.Load(name)
		assert.Error(t, err, name)
	}
}

func TestLatest_Empty(t *testing.T) {
	m, _ := setup(t)
	_, err := m.Latest()
	assert.ErrorIs(t, err, ErrNoBackups)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	m, _ := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("hi"), 0o600))
	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
