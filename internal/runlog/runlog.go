// Package runlog keeps a local SQLite log of diary generation runs.
// The log is advisory: failures to record never fail the generation
// flow itself.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/soramir/inkwell/internal/models"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS diary_runs (
	id            TEXT PRIMARY KEY,
	date          TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	narrative     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_diary_runs_date ON diary_runs(date);
`

// DB wraps a sql.DB with run-log operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the run-log database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("runlog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("runlog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("runlog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record inserts one run and returns its id.
func (db *DB) Record(date string, messageCount int, narrative, status string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`
		INSERT INTO diary_runs (id, date, message_count, narrative, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, date, messageCount, narrative, status, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("runlog: insert run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first.
func (db *DB) List(limit int) ([]models.DiaryRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, date, message_count, narrative, status, created_at
		FROM diary_runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.DiaryRun
	for rows.Next() {
		var r models.DiaryRun
		if err := rows.Scan(&r.ID, &r.Date, &r.MessageCount, &r.Narrative, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
