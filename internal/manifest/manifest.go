// Package manifest keeps a local history of completed renders. It is an
// audit log for the status command, never an authority on completion: the
// audio files on disk decide what still needs rendering.
package manifest

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"menagerie/internal/artifact"
)

//go:embed schema.sql
var schemaSQL string

// Render is one recorded render event.
type Render struct {
	RunID      string
	Identifier string
	Field      artifact.Field
	Path       string
	Bytes      int64
	Duration   time.Duration
	RenderedAt time.Time
}

// Store is a sqlite-backed render history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the manifest database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("manifest pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRender appends one render event.
func (s *Store) RecordRender(ctx context.Context, render Render) error {
	renderedAt := render.RenderedAt
	if renderedAt.IsZero() {
		renderedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renders (run_id, identifier, field, path, bytes, duration_ms, rendered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		render.RunID, render.Identifier, string(render.Field), render.Path,
		render.Bytes, render.Duration.Milliseconds(), renderedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record render: %w", err)
	}
	return nil
}

// RecentRenders returns the most recent render events, newest first.
func (s *Store) RecentRenders(ctx context.Context, limit int) ([]Render, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, identifier, field, path, bytes, duration_ms, rendered_at
		 FROM renders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent renders: %w", err)
	}
	defer rows.Close()

	var renders []Render
	for rows.Next() {
		var (
			render     Render
			field      string
			durationMS int64
			renderedAt string
		)
		if err := rows.Scan(&render.RunID, &render.Identifier, &field, &render.Path,
			&render.Bytes, &durationMS, &renderedAt); err != nil {
			return nil, fmt.Errorf("scan render: %w", err)
		}
		render.Field = artifact.Field(field)
		render.Duration = time.Duration(durationMS) * time.Millisecond
		if parsed, err := time.Parse(time.RFC3339, renderedAt); err == nil {
			render.RenderedAt = parsed
		}
		renders = append(renders, render)
	}
	return renders, rows.Err()
}

// CountRenders returns the total number of recorded render events.
func (s *Store) CountRenders(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM renders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count renders: %w", err)
	}
	return count, nil
}
