// Package postgres implements catalog.Store on PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
)

func init() {
	catalog.Register("postgres", func(ctx context.Context, dsn string) (catalog.Store, error) {
		return Open(ctx, dsn)
	})
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	job        TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS table_commits (
	run_id     TEXT NOT NULL REFERENCES runs(run_id),
	table_name TEXT NOT NULL,
	state      TEXT NOT NULL,
	row_count  BIGINT NOT NULL,
	detail     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, table_name)
);`

// Store is a Postgres-backed catalog.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the catalog tables if missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) BeginRun(ctx context.Context, run catalog.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (run_id, job, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Job, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: begin run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) RecordTable(ctx context.Context, c catalog.TableCommit) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO table_commits (run_id, table_name, state, row_count, detail, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id, table_name) DO UPDATE SET
	state = EXCLUDED.state,
	row_count = EXCLUDED.row_count,
	detail = EXCLUDED.detail,
	updated_at = EXCLUDED.updated_at`,
		c.RunID, c.Table, string(c.State), c.Rows, c.Detail, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: record %s/%s: %w", c.RunID, c.Table, err)
	}
	return nil
}

func (s *Store) EndRun(ctx context.Context, runID, status string, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, ended_at = $2 WHERE run_id = $3`,
		status, endedAt, runID)
	if err != nil {
		return fmt.Errorf("postgres: end run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: end run %s: unknown run", runID)
	}
	return nil
}

func (s *Store) Commits(ctx context.Context, runID string) ([]catalog.TableCommit, error) {
	rows, err := s.pool.Query(ctx, `
SELECT table_name, state, row_count, detail, updated_at
FROM table_commits WHERE run_id = $1 ORDER BY table_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: commits %s: %w", runID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.TableCommit, error) {
		c := catalog.TableCommit{RunID: runID}
		var state string
		err := row.Scan(&c.Table, &state, &c.Rows, &c.Detail, &c.UpdatedAt)
		c.State = catalog.State(state)
		c.UpdatedAt = c.UpdatedAt.UTC()
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan commits: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
