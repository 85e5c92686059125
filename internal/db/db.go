package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init opens the run ledger at baseDir/chronicle.db, creating it and the
// base directory on first use. The baseDir parameter allows tests to use
// t.TempDir() instead of ~/.chronicle.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0o700)

	// Pragmas in the connection string apply to all pooled connections.
	dbPath := filepath.Join(baseDir, "chronicle.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(database); err != nil {
		database.Close()
		return nil, err
	}

	if err := migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0o600)

	return database, nil
}

// migrate applies schema migrations based on user_version.
func migrate(database *sql.DB) error {
	version, err := GetUserVersion(database)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id                TEXT PRIMARY KEY,
		  kind              TEXT NOT NULL,
		  event             TEXT NOT NULL,
		  time_range        TEXT,
		  chunks            INTEGER NOT NULL DEFAULT 0,
		  calls             INTEGER NOT NULL DEFAULT 0,
		  prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		  completion_tokens INTEGER NOT NULL DEFAULT 0,
		  total_tokens      INTEGER NOT NULL DEFAULT 0,
		  note_path         TEXT,
		  status            TEXT NOT NULL,
		  error             TEXT,
		  created_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created
		ON runs(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_runs_kind_created
		ON runs(kind, created_at DESC);
		`
		if _, err := database.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(database, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(database *sql.DB) error {
	var journalMode string
	if err := database.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(database *sql.DB) (int, error) {
	var version int
	if err := database.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(database *sql.DB, version int) error {
	_, err := database.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
