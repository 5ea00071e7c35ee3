package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite initializes the local SQLite database and creates the necessary
// schemas for the event log, the offense ledger and the sentence audit trail.
func InitSQLite(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			tick_unit INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS offenses (
			rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			victim_type TEXT NOT NULL DEFAULT '',
			booked_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sentences (
			rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			original_minutes INTEGER NOT NULL,
			served_minutes INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_subject_id ON events(subject_id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);`,
		`CREATE INDEX IF NOT EXISTS idx_offenses_subject_id ON offenses(subject_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sentences_subject_id ON sentences(subject_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
