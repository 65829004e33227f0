/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/schema"
)

func testDataset(t *testing.T) (*dataset.Dataset, schema.Schema) {
	t.Helper()
	ds, err := dataset.FromRecords("purchases.csv", [][]string{
		{"date", "brand", "spend", "weight"},
		{"2024-01-05", "TESCO", "10.5", "2"},
		{"2024-02-10", "ASDA", "4.25", "1"},
		{"2024-03-15", "TESCO", "20", "3"},
	})
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}
	return ds, schema.Introspect(ds, schema.Options{DateColumn: "date"})
}

// exerciseStore runs the behaviour every backend shares
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	ds, sch := testDataset(t)
	if err := s.Load(ctx, "purchase", ds, sch); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	t.Run("aggregate", func(t *testing.T) {
		rs, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT brand, SUM(spend) AS total FROM purchase GROUP BY brand ORDER BY brand LIMIT 100"})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(rs.Columns) != 2 || rs.Columns[0] != "brand" || rs.Columns[1] != "total" {
			t.Fatalf("Columns = %v", rs.Columns)
		}
		if rs.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", rs.Len())
		}
		if v, _ := rs.Row(1).Get("brand"); v != "TESCO" {
			t.Errorf("brand = %v, want TESCO", v)
		}
		if v, _ := rs.Row(1).Get("total"); v != 30.5 {
			t.Errorf("total = %v (%T), want 30.5", v, v)
		}
	})

	t.Run("dates", func(t *testing.T) {
		rs, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT MAX(date) AS latest FROM purchase"})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if v, _ := rs.Row(0).Get("latest"); v != "2024-03-15" {
			t.Errorf("latest = %v (%T), want 2024-03-15", v, v)
		}
	})

	t.Run("empty result", func(t *testing.T) {
		rs, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT brand FROM purchase WHERE brand = 'NONE'"})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if rs.Len() != 0 || len(rs.Columns) != 1 {
			t.Errorf("got %d rows, columns %v", rs.Len(), rs.Columns)
		}
	})

	t.Run("invalid query keeps connection usable", func(t *testing.T) {
		_, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT no_such_column FROM purchase"})
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("Execute() error = %v, want ExecutionError", err)
		}
		if execErr.Message == "" || execErr.Query == "" {
			t.Errorf("ExecutionError = %+v", execErr)
		}

		rs, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT COUNT(*) AS n FROM purchase"})
		if err != nil {
			t.Fatalf("follow-up Execute() error = %v", err)
		}
		if v, _ := rs.Row(0).Get("n"); v != int64(3) {
			t.Errorf("n = %v (%T), want 3", v, v)
		}
	})

	t.Run("writes rejected", func(t *testing.T) {
		_, err := s.Execute(ctx, sanitize.Query{SQL: "DELETE FROM purchase"})
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("Execute(DELETE) error = %v, want ExecutionError", err)
		}

		rs, err := s.Execute(ctx, sanitize.Query{SQL: "SELECT COUNT(*) AS n FROM purchase"})
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := rs.Row(0).Get("n"); v != int64(3) {
			t.Errorf("rows after rejected delete = %v", v)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite("", "3f1c9a", DefaultStatementTimeout)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer s.Close()

	if s.Dialect() != "SQLite" {
		t.Errorf("Dialect() = %q", s.Dialect())
	}
	exerciseStore(t, s)
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLite(dir, "abc-123", DefaultStatementTimeout)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}

	path := filepath.Join(dir, "session_abc123.db")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("database file not removed: %v", err)
	}
}

func TestSQLiteStatementTimeout(t *testing.T) {
	s, err := NewSQLite("", "slow", 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ds, sch := testDataset(t)
	if err := s.Load(context.Background(), "purchase", ds, sch); err != nil {
		t.Fatal(err)
	}

	slow := "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n) SELECT COUNT(*) FROM n"
	_, err = s.Execute(context.Background(), sanitize.Query{SQL: slow})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want ExecutionError", err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), config.StoreConfig{Backend: "oracle"}, "x"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PGEDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PGEDGE_TEST_POSTGRES_DSN not set")
	}

	s, err := NewPostgres(context.Background(), dsn, "pgtest"+time.Now().Format("150405"), DefaultStatementTimeout)
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("PGEDGE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("PGEDGE_TEST_MYSQL_DSN not set")
	}

	s, err := NewMySQL(context.Background(), dsn, "mytest"+time.Now().Format("150405"), DefaultStatementTimeout)
	if err != nil {
		t.Fatalf("NewMySQL() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestResultSetJSON(t *testing.T) {
	rs := &ResultSet{
		Columns: []string{"zeta", "alpha"},
		Rows:    [][]any{{"b", int64(2)}, {nil, 1.5}},
	}
	data, err := json.Marshal(rs)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"columns":["zeta","alpha"],"rows":[{"zeta":"b","alpha":2},{"zeta":null,"alpha":1.5}]}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}

	empty, err := json.Marshal(&ResultSet{})
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != `{"columns":[],"rows":[]}` {
		t.Errorf("empty JSON = %s", empty)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil value", nil, ""},
		{"simple string", "hello", "hello"},
		{"string with tab", "hello\tworld", "hello\\tworld"},
		{"string with newline", "hello\nworld", "hello\\nworld"},
		{"integer", int64(42), "42"},
		{"float64", 1234567.5, "1234567.5"},
		{"bool", true, "true"},
		{"byte slice", []byte("bytes"), "bytes"},
		{"date", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15"},
		{"timestamp", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), "2024-01-15T10:30:00Z"},
		{"array", []any{"a", "b"}, `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.input); got != tt.expected {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResultSetTSV(t *testing.T) {
	rs := &ResultSet{
		Columns: []string{"brand", "spend"},
		Rows:    [][]any{{"TESCO", 30.5}, {"ASDA", nil}, {"LIDL", int64(7)}},
	}

	got, truncated := rs.TSV(0)
	if want := "brand\tspend\nTESCO\t30.5\nASDA\t\nLIDL\t7"; got != want || truncated {
		t.Errorf("TSV(0) = %q, %v", got, truncated)
	}

	got, truncated = rs.TSV(2)
	if want := "brand\tspend\nTESCO\t30.5\nASDA\t"; got != want || !truncated {
		t.Errorf("TSV(2) = %q, %v", got, truncated)
	}

	if got, _ := (&ResultSet{}).TSV(0); got != "" {
		t.Errorf("empty TSV = %q", got)
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		numeric bool
		want    any
	}{
		{"bytes to string", []byte("x"), false, "x"},
		{"decimal text", []byte("30.50"), true, 30.5},
		{"integer text", []byte("12"), true, int64(12)},
		{"int32", int32(4), false, int64(4)},
		{"date", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), false, "2024-03-15"},
		{"nil", nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeValue(tt.in, tt.numeric); got != tt.want {
				t.Errorf("normalizeValue() = %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}
