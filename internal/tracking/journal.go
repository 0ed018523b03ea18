// Package tracking persists playback engine events to a SQLite journal for
// later inspection with the stats command.
package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens (or creates) the journal database at dbPath and applies
// the schema. ":memory:" is accepted for tests.
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS playback_events (
    id          INTEGER PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    source_path TEXT    NOT NULL,
    generation  INTEGER NOT NULL,
    event_type  TEXT    NOT NULL,
    position    REAL,
    duration    REAL,
    state_prev  TEXT,
    state_curr  TEXT,
    severity    TEXT,
    message     TEXT
);

CREATE INDEX IF NOT EXISTS idx_playback_timestamp ON playback_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_playback_type ON playback_events(event_type);
CREATE INDEX IF NOT EXISTS idx_playback_source ON playback_events(source_path);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
