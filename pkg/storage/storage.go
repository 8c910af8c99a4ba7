// Package storage keeps a local history of executed issuing runs.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

// Run is one recorded issuing run.
type Run struct {
	ID           int64
	StartedAt    time.Time
	CSVPath      string
	Mode         string
	DisclosureID string
	DID          string
	RowCount     int
	OutputPath   string
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id            INTEGER PRIMARY KEY,
  started_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  csv_path      TEXT NOT NULL,
  mode          TEXT NOT NULL CHECK (mode IN ('legacy','single-qr')),
  disclosure_id TEXT NOT NULL,
  did           TEXT NOT NULL,
  row_count     INTEGER NOT NULL,
  output_path   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(started_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// InsertRun appends one run to the history.
func (d *DB) InsertRun(ctx context.Context, r Run) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO runs(started_at, csv_path, mode, disclosure_id, did, row_count, output_path) VALUES(?,?,?,?,?,?,?)`,
		r.StartedAt.UTC().Format(time.RFC3339), r.CSVPath, r.Mode, r.DisclosureID, r.DID, r.RowCount, r.OutputPath)
	return err
}

// ListRuns returns the history, most recent first.
func (d *DB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, started_at, csv_path, mode, disclosure_id, did, row_count, output_path FROM runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		if err := rows.Scan(&r.ID, &startedAt, &r.CSVPath, &r.Mode, &r.DisclosureID, &r.DID, &r.RowCount, &r.OutputPath); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
