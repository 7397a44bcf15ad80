// Package store persists assessment runs and their findings in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const runsSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		message TEXT,
		region TEXT,
		accounts INTEGER NOT NULL DEFAULT 0,
		findings INTEGER NOT NULL DEFAULT 0,
		pass_findings INTEGER NOT NULL DEFAULT 0,
		warn_findings INTEGER NOT NULL DEFAULT 0,
		fail_findings INTEGER NOT NULL DEFAULT 0,
		assessment_errors INTEGER NOT NULL DEFAULT 0
	);
`

const findingsSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		account_name TEXT,
		check_name TEXT NOT NULL,
		status TEXT NOT NULL,
		messages TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
`

var bootQueries = []string{
	runsSchema,
	findingsSchema,
	`CREATE INDEX IF NOT EXISTS findings_account ON findings (run_id, account_id);`,
	`PRAGMA foreign_keys = ON;`,
}

// Settings configures the database.
type Settings struct {
	// DbPath is a file path or ":memory:".
	DbPath string
}

// NewDB opens the SQLite database at settings.DbPath and creates the schema.
// The pool is limited to one connection so an in-memory database is shared
// by every query.
func NewDB(ctx context.Context, settings Settings) (*sql.DB, error) {
	if settings.DbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	db, err := sql.Open("sqlite", settings.DbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", settings.DbPath, err)
	}
	db.SetMaxOpenConns(1)

	for _, q := range bootQueries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialise schema: %w", err)
		}
	}
	return db, nil
}
