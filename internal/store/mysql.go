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
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/schema"
)

// MySQLStore keeps the dataset in a per-session database and queries it
// on one pinned connection
type MySQLStore struct {
	db       *sql.DB
	conn     *sql.Conn
	database string
	timeout  time.Duration
}

// NewMySQL connects and creates the session database
func NewMySQL(ctx context.Context, dsn, sessionID string, timeout time.Duration) (*MySQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql store requires store.mysql.dsn")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	// DATE columns scan as time.Time
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		logging.Error("mysql_connect_failed", "addr", cfg.Addr, "error", err)
		return nil, fmt.Errorf("unable to connect to mysql: %w", err)
	}

	s := &MySQLStore{db: db, conn: conn, database: sessionObjectName(sessionID), timeout: timeout}
	ident := quoteIdent(s.database, '`')
	for _, stmt := range []string{
		"CREATE DATABASE " + ident + " CHARACTER SET utf8mb4",
		"USE " + ident,
		fmt.Sprintf("SET SESSION max_execution_time = %d", timeout.Milliseconds()),
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare session database: %w", err)
		}
	}

	logging.Info("mysql_connected", "addr", cfg.Addr, "database", s.database)
	return s, nil
}

// Dialect implements Store
func (s *MySQLStore) Dialect() string {
	return "MySQL"
}

// Load implements Store with batched multi-row inserts
func (s *MySQLStore) Load(ctx context.Context, table string, ds *dataset.Dataset, sch schema.Schema) error {
	start := time.Now()
	types := columnTypes(ds, sch)

	names := make([]string, len(ds.Columns))
	defs := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		names[i] = quoteIdent(col.Name, '`')
		defs[i] = names[i] + " " + mysqlType(types[i])
	}

	quotedTable := quoteIdent(table, '`')
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quotedTable, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", quotedTable, strings.Join(names, ", "))

	total := ds.NumRows()
	for batchStart := 0; batchStart < total; batchStart += insertBatchRows {
		batchEnd := batchStart + insertBatchRows
		if batchEnd > total {
			batchEnd = total
		}

		placeholders := make([]string, 0, batchEnd-batchStart)
		args := make([]any, 0, (batchEnd-batchStart)*len(names))
		for row := batchStart; row < batchEnd; row++ {
			placeholders = append(placeholders, rowPlaceholder)
			for i, col := range ds.Columns {
				args = append(args, cellValue(col.Values[row], types[i], false))
			}
		}

		if _, err := s.conn.ExecContext(ctx, prefix+strings.Join(placeholders, ", "), args...); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", batchStart+1, batchEnd, err)
		}
	}

	logging.Info("dataset_loaded",
		"backend", "mysql",
		"table", table,
		"database", s.database,
		"rows", total,
		"columns", len(names),
		"duration", time.Since(start).String(),
	)
	return nil
}

func mysqlType(t columnType) string {
	switch t {
	case colInteger:
		return "BIGINT"
	case colReal:
		return "DOUBLE"
	case colDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Execute implements Store
func (s *MySQLStore) Execute(ctx context.Context, q sanitize.Query) (*ResultSet, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
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

	if rbErr := tx.Rollback(); rbErr != nil && err == nil {
		logging.Warn("mysql_rollback_failed", "error", rbErr)
	}

	if err != nil {
		logging.Info("query_failed", "backend", "mysql", "sql", q.SQL, "error", err)
		return nil, newExecutionError(q.SQL, err)
	}

	logging.Debug("query_executed",
		"backend", "mysql",
		"rows", rs.Len(),
		"duration", time.Since(start).String(),
	)
	return rs, nil
}

// Close implements Store, dropping the session database
func (s *MySQLStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, dropErr := s.conn.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(s.database, '`'))
	if dropErr != nil {
		logging.Warn("mysql_database_drop_failed", "database", s.database, "error", dropErr)
	}
	s.conn.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return dropErr
}
