// Package install moves generated artifacts into the nginx include
// directory. Every file is staged next to its target first and only renamed
// into place once all files have been staged, so a failure never leaves a
// partial set of artifacts behind.
package install

import (
	"context"
	"fmt"
)

// File is one artifact to install. Name is relative to the installer's
// directory.
type File struct {
	Name string
	Data []byte
}

// Installer writes artifacts and reads back the installed versions.
type Installer interface {
	// Install stages every file, then commits them all.
	Install(ctx context.Context, files []File) error
	// Current returns the installed contents of name, or nil if absent.
	Current(ctx context.Context, name string) ([]byte, error)
	// Describe names the destination for logs and messages.
	Describe() string
}

// Error reports a filesystem failure during installation.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func validateNames(files []File) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Name == "" || f.Name == "." || f.Name == ".." || containsSlash(f.Name) {
			return &Error{Path: f.Name, Op: "validate", Err: fmt.Errorf("file name must be a plain base name")}
		}
		if _, dup := seen[f.Name]; dup {
			return &Error{Path: f.Name, Op: "validate", Err: fmt.Errorf("duplicate file name")}
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' || s[i] == '\\' {
			return true
		}
	}
	return false
}
