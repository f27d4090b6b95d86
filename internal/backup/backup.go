// Package backup keeps gzip-compressed snapshots of the installed artifacts
// so a bad whitelist can be rolled back.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ngxwhitelist/internal/install"
)

const (
	prefix = "whitelist-"
	suffix = ".tar.gz"
	stamp  = "20060102-150405.000"

	// DefaultMaxAge is how long snapshots are kept.
	DefaultMaxAge = 30 * 24 * time.Hour
)

// ErrNoBackups is returned by Latest when the directory holds no snapshot.
var ErrNoBackups = errors.New("no backups found")

type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Manager struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func NewManager(dir string, maxAge time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Manager{dir: dir, maxAge: maxAge, now: time.Now}, nil
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string { return m.dir }

// Snapshot archives the currently installed versions of names. It returns
// nil without error when none of them is installed yet.
func (m *Manager) Snapshot(ctx context.Context, inst install.Installer, names []string) (*Info, error) {
	var files []install.File
	for _, name := range names {
		data, err := inst.Current(ctx, name)
		if err != nil {
			return nil, err
		}
		if data != nil {
			files = append(files, install.File{Name: name, Data: data})
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	created := m.now()
	name := prefix + created.UTC().Format(stamp) + suffix
	outPath := filepath.Join(m.dir, name)

	var buf bytes.Buffer
	if err := writeArchive(&buf, files, created); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o640); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	return &Info{Name: name, Path: outPath, Size: int64(buf.Len()), CreatedAt: created}, nil
}

func writeArchive(w io.Writer, files []install.File, mod time.Time) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gz)
	for _, f := range files {
		hdr := &tar.Header{Name: f.Name, Mode: 0o644, Size: int64(len(f.Data)), ModTime: mod}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(f.Data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// List returns all snapshots, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var backups []Info
	for _, e := range entries {
		if e.IsDir() || !isSnapshot(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created := info.ModTime()
		ts := strings.TrimSuffix(strings.TrimPrefix(e.Name(), prefix), suffix)
		if t, err := time.Parse(stamp, ts); err == nil {
			created = t
		}
		backups = append(backups, Info{
			Name:      e.Name(),
			Path:      filepath.Join(m.dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Latest returns the name of the newest snapshot.
func (m *Manager) Latest() (string, error) {
	backups, err := m.List()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", ErrNoBackups
	}
	return backups[0].Name, nil
}

// Load reads the files stored in the snapshot called name.
func (m *Manager) Load(name string) ([]install.File, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !isSnapshot(name) {
		return nil, fmt.Errorf("invalid backup name %q", name)
	}
	f, err := os.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	var files []install.File
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read backup: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		files = append(files, install.File{Name: hdr.Name, Data: data})
	}
	return files, nil
}

// CleanOld removes snapshots older than the retention period.
func (m *Manager) CleanOld() int {
	cutoff := m.now().Add(-m.maxAge)
	backups, err := m.List()
	if err != nil {
		return 0
	}

	removed := 0
	for _, b := range backups {
		if b.CreatedAt.Before(cutoff) {
			if err := os.Remove(b.Path); err == nil {
				removed++
			}
		}
	}
	return removed
}

func isSnapshot(name string) bool {
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
}

// FormatSize returns a human-readable file size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
