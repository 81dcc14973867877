package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			idempotency_key TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			reason TEXT,
			card_id INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			needs_reconciliation INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			completed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_reconciliation ON outcomes(needs_reconciliation)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
