package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/citelens/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/citelens.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.citelens.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create captures subdirectory (default location for MCP-supplied capture logs)
	capturesDir := filepath.Join(baseDir, "captures")
	if err := os.MkdirAll(capturesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create captures directory: %w", err)
	}
	_ = os.Chmod(capturesDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "citelens.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS interactions (
		  id                  TEXT PRIMARY KEY,
		  label               TEXT,
		  response_text       TEXT NOT NULL,
		  queries_count       INTEGER NOT NULL,
		  sources_found_count INTEGER NOT NULL,
		  sources_used_count  INTEGER NOT NULL,
		  average_rank        REAL,
		  extra_links_count   INTEGER NOT NULL,
		  events_count        INTEGER NOT NULL,
		  completed           INTEGER NOT NULL,
		  created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_created
		ON interactions(created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS queries (
		  interaction_id TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
		  idx            INTEGER NOT NULL,
		  text           TEXT NOT NULL,
		  PRIMARY KEY (interaction_id, idx)
		);

		CREATE TABLE IF NOT EXISTS sources (
		  interaction_id    TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
		  idx               INTEGER NOT NULL,
		  url               TEXT NOT NULL,
		  title             TEXT NOT NULL,
		  domain            TEXT NOT NULL,
		  snippet           TEXT,
		  published_at      TEXT,
		  rank_within_group INTEGER NOT NULL,
		  group_index       INTEGER NOT NULL,
		  PRIMARY KEY (interaction_id, idx)
		);

		CREATE TABLE IF NOT EXISTS citations (
		  interaction_id     TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
		  sequence_index     INTEGER NOT NULL,
		  url                TEXT NOT NULL,
		  title_or_link_text TEXT NOT NULL,
		  kind               TEXT NOT NULL,
		  span_start         INTEGER NOT NULL,
		  span_end           INTEGER NOT NULL,
		  source_idx         INTEGER,
		  rank               INTEGER,
		  PRIMARY KEY (interaction_id, sequence_index)
		);

		CREATE TABLE IF NOT EXISTS warnings (
		  interaction_id TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
		  idx            INTEGER NOT NULL,
		  kind           TEXT NOT NULL,
		  event_index    INTEGER NOT NULL,
		  message        TEXT NOT NULL,
		  PRIMARY KEY (interaction_id, idx)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
