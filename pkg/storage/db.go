// Package storage persists raw provider responses and the normalized
// relational snapshot of each search in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Open opens (creating if needed) the SQLite database at path and applies
// pending migrations.
//
// Foreign keys are enforced on every connection. The pool is limited to one
// connection so writers serialize inside SQLite's single-writer model.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := NewMigrationManager(db).ApplyPending(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
