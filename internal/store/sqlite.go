package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// SQLiteStore is a Store backed by a single SQLite file (or ":memory:"),
// useful for the CLI harness and single-node deployments that don't want
// an external Postgres instance.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures the schema exists. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids "database is
	// locked" errors under concurrent access from the orchestration core.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{sqlStore: &sqlStore{db: db, ph: questionPlaceholder}}, nil
}
