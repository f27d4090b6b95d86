package install

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileMode is applied to installed artifacts.
const DefaultFileMode = 0o644

// LocalInstaller installs into a directory on this machine.
type LocalInstaller struct {
	Dir    string
	Mode   os.FileMode
	Logger *slog.Logger
	mu     sync.Mutex
}

func NewLocalInstaller(dir string, logger *slog.Logger) *LocalInstaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalInstaller{Dir: dir, Mode: DefaultFileMode, Logger: logger}
}

func (l *LocalInstaller) Describe() string { return l.Dir }

type staged struct {
	tmp, target string
}

func (l *LocalInstaller) Install(ctx context.Context, files []File) error {
	if err := validateNames(files); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	mode := l.Mode
	if mode == 0 {
		mode = DefaultFileMode
	}

	var pending []staged
	cleanup := func() {
		for _, s := range pending {
			os.Remove(s.tmp)
		}
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		target := filepath.Join(l.Dir, f.Name)
		tmp, err := l.stage(f, mode)
		if err != nil {
			cleanup()
			return &Error{Path: target, Op: "stage", Err: err}
		}
		pending = append(pending, staged{tmp: tmp, target: target})
	}

	for i, s := range pending {
		if err := os.Rename(s.tmp, s.target); err != nil {
			// Files already committed stay; only the remaining temps go.
			pending = pending[i:]
			cleanup()
			return &Error{Path: s.target, Op: "commit", Err: err}
		}
	}

	l.Logger.Info("files_installed", slog.String("dir", l.Dir), slog.Int("files", len(files)))
	return nil
}

func (l *LocalInstaller) stage(f File, mode os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(l.Dir, "."+f.Name+".*.tmp")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if _, err := tmp.Write(f.Data); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (l *LocalInstaller) Current(_ context.Context, name string) ([]byte, error) {
	path := filepath.Join(l.Dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Path: path, Op: "read", Err: err}
	}
	return data, nil
}
