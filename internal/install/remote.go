package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/pkg/sftp"

	sshutil "ngxwhitelist/internal/ssh"
)

// RemoteInstaller installs into a directory on another host over SFTP.
type RemoteInstaller struct {
	Target sshutil.Target
	Dir    string
	Logger *slog.Logger

	// dial is replaced in tests.
	dial func() (*sftp.Client, io.Closer, error)
}

func NewRemoteInstaller(target sshutil.Target, dir string, logger *slog.Logger) *RemoteInstaller {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RemoteInstaller{Target: target, Dir: dir, Logger: logger}
	r.dial = r.dialSSH
	return r
}

func (r *RemoteInstaller) Describe() string {
	return fmt.Sprintf("%s@%s:%s", r.Target.User, r.Target.Host, r.Dir)
}

func (r *RemoteInstaller) dialSSH() (*sftp.Client, io.Closer, error) {
	sshClient, err := sshutil.Dial(r.Target)
	if err != nil {
		return nil, nil, err
	}
	c, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to create SFTP session: %w", err)
	}
	return c, sshClient, nil
}

func (r *RemoteInstaller) Install(ctx context.Context, files []File) error {
	if err := validateNames(files); err != nil {
		return err
	}
	c, conn, err := r.dial()
	if err != nil {
		return &Error{Path: r.Describe(), Op: "connect", Err: err}
	}
	defer conn.Close()
	defer c.Close()

	if err := c.MkdirAll(r.Dir); err != nil {
		return &Error{Path: r.Dir, Op: "mkdir", Err: err}
	}

	var pending []staged
	cleanup := func() {
		for _, s := range pending {
			c.Remove(s.tmp)
		}
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		target := path.Join(r.Dir, f.Name)
		tmp := path.Join(r.Dir, "."+f.Name+".tmp")
		if err := writeRemote(c, tmp, f.Data); err != nil {
			cleanup()
			return &Error{Path: target, Op: "stage", Err: err}
		}
		pending = append(pending, staged{tmp: tmp, target: target})
	}

	for i, s := range pending {
		if err := renameRemote(c, s.tmp, s.target); err != nil {
			pending = pending[i:]
			cleanup()
			return &Error{Path: s.target, Op: "commit", Err: err}
		}
	}

	r.Logger.Info("files_installed", slog.String("dest", r.Describe()), slog.Int("files", len(files)))
	return nil
}

func writeRemote(c *sftp.Client, name string, data []byte) error {
	f, err := c.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// renameRemote prefers the atomic posix-rename extension and falls back to
// remove-then-rename on servers without it.
func renameRemote(c *sftp.Client, from, to string) error {
	if err := c.PosixRename(from, to); err == nil {
		return nil
	}
	if err := c.Remove(to); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return c.Rename(from, to)
}

func (r *RemoteInstaller) Current(_ context.Context, name string) ([]byte, error) {
	c, conn, err := r.dial()
	if err != nil {
		return nil, &Error{Path: r.Describe(), Op: "connect", Err: err}
	}
	defer conn.Close()
	defer c.Close()

	p := path.Join(r.Dir, name)
	f, err := c.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Path: p, Op: "read", Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &Error{Path: p, Op: "read", Err: err}
	}
	return data, nil
}
