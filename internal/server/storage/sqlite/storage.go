// Package sqlite implements storage.Storage on top of an embedded
// SQLite database, one file per server process (all instances share
// it, partitioned by sku).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage is the sqlite-backed implementation of storage.Storage.
type Storage struct {
	db *sql.DB
}

// New opens dbPath (":memory:" for tests), applies pending goose
// migrations, and configures the single-writer pragmas the serialized
// per-instance actor model relies on.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite in WAL mode supports many readers but one writer; a
	// single pooled connection keeps writes serialized at the driver
	// level, matching the actor's own serialization.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) runMigrations() error {
	goose.SetDialect("sqlite3")
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests.
func (s *Storage) DB() *sql.DB {
	return s.db
}
