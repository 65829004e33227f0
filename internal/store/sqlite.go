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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/schema"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore keeps the dataset in a private SQLite database on a single
// long-lived connection
type SQLiteStore struct {
	db      *sql.DB
	path    string // Empty for an in-memory database
	timeout time.Duration
}

// NewSQLite opens a database for the session. With an empty dir the
// database lives in memory.
func NewSQLite(dir, sessionID string, timeout time.Duration) (*SQLiteStore, error) {
	dsn := ":memory:"
	path := ""
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		path = filepath.Join(dir, sessionObjectName(sessionID)+".db")
		// Leftover from an earlier run with the same id
		_ = os.Remove(path) //nolint:errcheck // file may not exist
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{db: db, path: path, timeout: timeout}, nil
}

// Dialect implements Store
func (s *SQLiteStore) Dialect() string {
	return "SQLite"
}

// Load implements Store. The connection is read-only afterwards.
func (s *SQLiteStore) Load(ctx context.Context, table string, ds *dataset.Dataset, sch schema.Schema) error {
	start := time.Now()
	types := columnTypes(ds, sch)

	defs := make([]string, len(ds.Columns))
	names := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		names[i] = quoteIdent(col.Name, '"')
		defs[i] = names[i] + " " + sqliteType(types[i])
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	quotedTable := quoteIdent(table, '"')
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quotedTable, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(ds.Columns))
	for row := 0; row < ds.NumRows(); row++ {
		for i, col := range ds.Columns {
			args[i] = cellValue(col.Values[row], types[i], true)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", row+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("failed to make database read-only: %w", err)
	}

	logging.Info("dataset_loaded",
		"backend", "sqlite",
		"table", table,
		"rows", ds.NumRows(),
		"columns", len(ds.Columns),
		"duration", time.Since(start).String(),
	)
	return nil
}

func sqliteType(t columnType) string {
	switch t {
	case colInteger:
		return "INTEGER"
	case colReal:
		return "REAL"
	default:
		// Dates are ISO text so that strftime and comparisons work
		return "TEXT"
	}
}

// Execute implements Store
func (s *SQLiteStore) Execute(ctx context.Context, q sanitize.Query) (*ResultSet, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, newExecutionError(q.SQL, err)
	}

	rs, err := func() (*ResultSet, error) {
		rows, err := tx.QueryContext(ctx, q.SQL)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}()

	// Nothing is ever committed
	if rbErr := tx.Rollback(); rbErr != nil && err == nil {
		logging.Warn("sqlite_rollback_failed", "error", rbErr)
	}

	if err != nil {
		logging.Info("query_failed", "backend", "sqlite", "sql", q.SQL, "error", err)
		return nil, newExecutionError(q.SQL, err)
	}

	logging.Debug("query_executed",
		"backend", "sqlite",
		"rows", rs.Len(),
		"duration", time.Since(start).String(),
	)
	return rs, nil
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if s.path != "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}
