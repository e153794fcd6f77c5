package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wayfarerhq/wayfarer/internal/db/migrations"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// Open creates a SQLite database connection, runs migrations, and returns the
// shared handle. All stores share it.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Force a single connection. SQLite doesn't handle concurrent writers
	// well, so all access is serialized through this one handle.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Infof("sqlite database ready at %s", path)
	return conn, nil
}
