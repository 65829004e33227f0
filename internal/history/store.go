/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package history persists answered questions in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry is one finished ask
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql,omitempty"`
	State      string    `json:"state"`
	Text       string    `json:"text"`
	Notice     string    `json:"notice,omitempty"`
	Rows       int       `json:"rows"`
	HasImage   bool      `json:"has_image"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages history persistence using SQLite
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewStore opens or creates history.db in dataDir
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        question TEXT NOT NULL,
        sql_text TEXT DEFAULT '',
        state TEXT NOT NULL,
        answer TEXT DEFAULT '',
        notice TEXT DEFAULT '',
        row_count INTEGER DEFAULT 0,
        has_image INTEGER DEFAULT 0,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_history_session
        ON history(session_id, created_at DESC);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Migration: duration_ms was added after the first release
	var count int
	err := s.db.QueryRow(`
        SELECT COUNT(*) FROM pragma_table_info('history')
        WHERE name = 'duration_ms'
    `).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec(`ALTER TABLE history ADD COLUMN duration_ms INTEGER DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add duration_ms column: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e and returns it with its ID and timestamp set
func (s *Store) Record(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.SessionID == "" {
		return e, fmt.Errorf("session id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO history (session_id, question, sql_text, state, answer, notice, row_count, has_image, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Question, e.SQL, e.State, e.Text, e.Notice, e.Rows, e.HasImage, e.DurationMS, e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to insert history entry: %w", err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return e, fmt.Errorf("failed to read history id: %w", err)
	}
	return e, nil
}

// List returns the newest entries of a session first
func (s *Store) List(sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, question, sql_text, state, answer, notice, row_count, has_image, duration_ms, created_at
         FROM history
         WHERE session_id = ?
         ORDER BY created_at DESC, id DESC
         LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Question, &e.SQL, &e.State, &e.Text,
			&e.Notice, &e.Rows, &e.HasImage, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// DeleteSession removes every entry of a session
func (s *Store) DeleteSession(sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM history WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return res.RowsAffected()
}
