package install

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sshutil "ngxwhitelist/internal/ssh"
)

func artifacts(shared, wl string) []File {
	return []File{
		{Name: "shared.conf", Data: []byte(shared)},
		{Name: "include.whitelist", Data: []byte(wl)},
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestLocalInstaller_InstallAndOverwrite(t *testing.T) {
	dir := t.TempDir()
	inst := NewLocalInstaller(dir, nil)
	ctx := context.Background()

	require.NoError(t, inst.Install(ctx, artifacts("a;\n", "b;\n")))
	require.NoError(t, inst.Install(ctx, artifacts("c;\n", "d;\n")))

	got, err := os.ReadFile(filepath.Join(dir, "shared.conf"))
	require.NoError(t, err)
	assert.Equal(t, "c;\n", string(got))

	info, err := os.Stat(filepath.Join(dir, "include.whitelist"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DefaultFileMode), info.Mode().Perm())

	assert.ElementsMatch(t, []string{"shared.conf", "include.whitelist"}, listDir(t, dir))
}

func TestLocalInstaller_CommitFailureLeavesNoTemps(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the target path makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "include.whitelist", "x"), 0o755))

	inst := NewLocalInstaller(dir, nil)
	err := inst.Install(context.Background(), artifacts("a;\n", "b;\n"))

	var ie *Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "commit", ie.Op)
	assert.Equal(t, filepath.Join(dir, "include.whitelist"), ie.Path)

	for _, name := range listDir(t, dir) {
		assert.False(t, strings.HasSuffix(name, ".tmp"), "leftover temp file %s", name)
	}
}

func TestLocalInstaller_StageFailure(t *testing.T) {
	inst := NewLocalInstaller(filepath.Join(t.TempDir(), "missing"), nil)
	err := inst.Install(context.Background(), artifacts("a;\n", "b;\n"))
	var ie *Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "stage", ie.Op)
}

func TestLocalInstaller_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewLocalInstaller(dir, nil).Install(ctx, artifacts("a;\n", "b;\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, dir))
}

func TestValidateNames(t *testing.T) {
	bad := [][]File{
		{{Name: ""}},
		{{Name: "../etc/passwd"}},
		{{Name: "a/b"}},
		{{Name: "x"}, {Name: "x"}},
	}
	for _, files := range bad {
		err := validateNames(files)
		var ie *Error
		if assert.True(t, errors.As(err, &ie), "files %v", files) {
			assert.Equal(t, "validate", ie.Op)
		}
	}
	assert.NoError(t, validateNames(artifacts("", "")))
}

func TestLocalInstaller_Current(t *testing.T) {
	dir := t.TempDir()
	inst := NewLocalInstaller(dir, nil)

	got, err := inst.Current(context.Background(), "shared.conf")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.conf"), []byte("x;\n"), 0o644))
	got, err = inst.Current(context.Background(), "shared.conf")
	require.NoError(t, err)
	assert.Equal(t, "x;\n", string(got))
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	inst := NewLocalInstaller(dir, nil)
	ctx := context.Background()
	require.NoError(t, inst.Install(ctx, artifacts("gzip on;\n", "location = / {\n}\n")))

	out, err := Diff(ctx, inst, artifacts("gzip off;\n", "location = / {\n}\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "--- a/shared.conf")
	assert.Contains(t, out, "+++ b/shared.conf")
	assert.Contains(t, out, "-gzip on;")
	assert.Contains(t, out, "+gzip off;")
	assert.NotContains(t, out, "include.whitelist")

	empty, err := Diff(ctx, NewLocalInstaller(t.TempDir(), nil), artifacts("a;\n", ""))
	require.NoError(t, err)
	assert.Contains(t, empty, "+a;")
}

func memInstaller(t *testing.T, dir string) *RemoteInstaller {
	t.Helper()
	handlers := sftp.InMemHandler()
	r := NewRemoteInstaller(sshutil.Target{Host: "web1", User: "deploy"}, dir, nil)
	r.dial = func() (*sftp.Client, io.Closer, error) {
		serverConn, clientConn := net.Pipe()
		srv := sftp.NewRequestServer(serverConn, handlers)
		go srv.Serve()
		c, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			return nil, nil, err
		}
		return c, serverConn, nil
	}
	return r
}

func TestRemoteInstaller_InMemory(t *testing.T) {
	r := memInstaller(t, "/etc/nginx")
	ctx := context.Background()

	require.NoError(t, r.Install(ctx, artifacts("a;\n", "b;\n")))
	require.NoError(t, r.Install(ctx, artifacts("c;\n", "d;\n")))

	got, err := r.Current(ctx, "shared.conf")
	require.NoError(t, err)
	assert.Equal(t, "c;\n", string(got))

	got, err = r.Current(ctx, "include.whitelist")
	require.NoError(t, err)
	assert.Equal(t, "d;\n", string(got))

	missing, err := r.Current(ctx, "nope.conf")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, "deploy@web1:/etc/nginx", r.Describe())
}
