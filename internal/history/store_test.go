/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("Database file was not created: %v", err)
	}
	if store.Path() != filepath.Join(dir, "history.db") {
		t.Errorf("Path() = %q", store.Path())
	}
}

func TestRecordAndList(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{SessionID: "s1", Question: "total spend", SQL: "SELECT 1", State: "done", Text: "£10", Rows: 1, CreatedAt: base},
		{SessionID: "s1", Question: "spend by brand", State: "done", Text: "TESCO leads", Rows: 3, HasImage: true, DurationMS: 900, CreatedAt: base.Add(time.Minute)},
		{SessionID: "s2", Question: "other session", State: "failed", Text: "I was unable to answer that question.", CreatedAt: base},
	}
	for _, e := range entries {
		got, err := store.Record(e)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if got.ID == 0 {
			t.Error("Record() did not assign an ID")
		}
	}

	list, err := store.List("s1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}
	if list[0].Question != "spend by brand" || !list[0].HasImage || list[0].DurationMS != 900 {
		t.Errorf("newest entry = %+v", list[0])
	}
	if list[1].SQL != "SELECT 1" || list[1].Rows != 1 {
		t.Errorf("oldest entry = %+v", list[1])
	}

	limited, err := store.List("s1", 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(limit 1) returned %d entries", len(limited))
	}

	empty, err := store.List("missing", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List(missing) = %#v, want empty slice", empty)
	}
}

func TestRecordRequiresSession(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Record(Entry{Question: "q", State: "done"}); err == nil {
		t.Error("Record() without a session id should fail")
	}
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Record(Entry{SessionID: "s1", Question: "q", State: "done"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if _, err := store.Record(Entry{SessionID: "s2", Question: "q", State: "done"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	n, err := store.DeleteSession("s1")
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteSession() removed %d rows, want 3", n)
	}
	remaining, _ := store.List("s2", 10)
	if len(remaining) != 1 {
		t.Errorf("other session lost entries: %d", len(remaining))
	}
}

func TestSchemaMigration(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")

	// Old schema without duration_ms
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE history (
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
    )`)
	if err != nil {
		t.Fatalf("Failed to create old schema: %v", err)
	}
	_, err = db.Exec(`INSERT INTO history (session_id, question, state, created_at) VALUES ('s1', 'old', 'done', ?)`, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to insert old row: %v", err)
	}
	db.Close()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() on old schema error = %v", err)
	}
	defer store.Close()

	list, err := store.List("s1", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Question != "old" || list[0].DurationMS != 0 {
		t.Errorf("migrated entries = %+v", list)
	}
}
