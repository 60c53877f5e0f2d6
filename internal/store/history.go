// Package store persists session history to SQLite. The store is strictly
// best-effort: the assistant works normally when the database cannot be
// opened, and a nil *History is safe to call.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"testsmith/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	model        TEXT NOT NULL,
	project_root TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	created_at TIMESTAMP NOT NULL,
	role       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	class_name TEXT,
	content    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
`

// Turn is one recorded conversation turn.
type Turn struct {
	SessionID string
	CreatedAt time.Time
	Role      string // user, model
	Kind      string // command, generation, refinement, error
	ClassName string
	Content   string
}

// History records sessions and turns in SQLite.
type History struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent access
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logging.Store("history database opened: %s", path)
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// StartSession records the beginning of a session.
func (h *History) StartSession(sessionID, model, projectRoot string) error {
	if h == nil || h.db == nil {
		return nil
	}
	_, err := h.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, started_at, model, project_root) VALUES (?, ?, ?, ?)`,
		sessionID, time.Now().UTC(), model, projectRoot,
	)
	if err != nil {
		logging.StoreError("failed to record session %s: %v", sessionID, err)
	}
	return err
}

// RecordTurn appends one turn to a session's history.
func (h *History) RecordTurn(t Turn) error {
	if h == nil || h.db == nil {
		return nil
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := h.db.Exec(
		`INSERT INTO turns (session_id, created_at, role, kind, class_name, content) VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.CreatedAt, t.Role, t.Kind, t.ClassName, t.Content,
	)
	if err != nil {
		logging.StoreError("failed to record turn for session %s: %v", t.SessionID, err)
	}
	return err
}

// SessionTurns returns all turns for a session in insertion order.
func (h *History) SessionTurns(sessionID string) ([]Turn, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}
	rows, err := h.db.Query(
		`SELECT session_id, created_at, role, kind, COALESCE(class_name, ''), content
		 FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.CreatedAt, &t.Role, &t.Kind, &t.ClassName, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// RecentSessions returns the ids of the most recent sessions, newest first.
func (h *History) RecentSessions(limit int) ([]string, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := h.db.Query(`SELECT id FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
