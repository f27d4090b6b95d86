package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run sources.
const (
	SourceCLI = "cli"
	SourceAPI = "api"
	SourceMCP = "mcp"
)

// Run is one generation attempt.
type Run struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Patterns         int       `json:"patterns"`
	Groups           int       `json:"groups"`
	SharedDirectives int       `json:"shared_directives"`
	Warnings         int       `json:"warnings"`
	Destination      string    `json:"destination,omitempty"`
	Installed        bool      `json:"installed"`
	Reloaded         bool      `json:"reloaded"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists runs. A nil *Store discards everything, so callers can
// run with history disabled.
type Store struct {
	db *sql.DB
}

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("run not found")

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores r, assigning an id and timestamp when they are unset, and
// returns the stored run.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if s == nil {
		return r, nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, patterns, groups_count, shared_directives, warnings, destination, installed, reloaded, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, r.Patterns, r.Groups, r.SharedDirectives, r.Warnings, r.Destination,
		r.Installed, r.Reloaded, r.Error, r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return r, fmt.Errorf("failed to record run: %w", err)
	}
	return r, nil
}

const selectRuns = `SELECT id, source, patterns, groups_count, shared_directives, warnings, destination, installed, reloaded, error, created_at FROM runs`

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return []Run{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	if s == nil {
		return Run{}, ErrNotFound
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		created string
	)
	err := sc.Scan(&r.ID, &r.Source, &r.Patterns, &r.Groups, &r.SharedDirectives, &r.Warnings,
		&r.Destination, &r.Installed, &r.Reloaded, &r.Error, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if t, perr := time.Parse(timeLayout, created); perr == nil {
		r.CreatedAt = t
	}
	return r, nil
}
