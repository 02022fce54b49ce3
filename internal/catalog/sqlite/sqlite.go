// Package sqlite implements catalog.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
)

func init() {
	catalog.Register("sqlite", func(ctx context.Context, dsn string) (catalog.Store, error) {
		return Open(ctx, dsn)
	})
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	job        TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);
CREATE TABLE IF NOT EXISTS table_commits (
	run_id     TEXT NOT NULL REFERENCES runs(run_id),
	table_name TEXT NOT NULL,
	state      TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	detail     TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, table_name)
);`

// Store is a SQLite-backed catalog.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at dsn, e.g.
// "catalog.db" or "file:catalog.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; stages share the store.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) BeginRun(ctx context.Context, run catalog.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, job, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Job, run.Status, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: begin run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) RecordTable(ctx context.Context, c catalog.TableCommit) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO table_commits (run_id, table_name, state, row_count, detail, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, table_name) DO UPDATE SET
	state = excluded.state,
	row_count = excluded.row_count,
	detail = excluded.detail,
	updated_at = excluded.updated_at`,
		c.RunID, c.Table, string(c.State), c.Rows, c.Detail, c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: record %s/%s: %w", c.RunID, c.Table, err)
	}
	return nil
}

func (s *Store) EndRun(ctx context.Context, runID, status string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE run_id = ?`,
		status, endedAt.UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("sqlite: end run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: end run %s: unknown run", runID)
	}
	return nil
}

func (s *Store) Commits(ctx context.Context, runID string) ([]catalog.TableCommit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name, state, row_count, detail, updated_at
FROM table_commits WHERE run_id = ? ORDER BY table_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: commits %s: %w", runID, err)
	}
	defer rows.Close()

	var out []catalog.TableCommit
	for rows.Next() {
		var (
			c     = catalog.TableCommit{RunID: runID}
			state string
			ms    int64
		)
		if err := rows.Scan(&c.Table, &state, &c.Rows, &c.Detail, &ms); err != nil {
			return nil, fmt.Errorf("sqlite: scan commit: %w", err)
		}
		c.State = catalog.State(state)
		c.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Run returns the stored run record.
func (s *Store) Run(ctx context.Context, runID string) (catalog.Run, error) {
	var (
		r       = catalog.Run{ID: runID}
		started int64
		ended   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job, status, started_at, ended_at FROM runs WHERE run_id = ?`, runID).
		Scan(&r.Job, &r.Status, &started, &ended)
	if err != nil {
		return r, fmt.Errorf("sqlite: run %s: %w", runID, err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		r.EndedAt = time.UnixMilli(ended.Int64).UTC()
	}
	return r, nil
}

func (s *Store) Close() error { return s.db.Close() }
