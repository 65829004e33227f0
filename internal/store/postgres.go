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
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/schema"
)

// applicationName identifies session connections in pg_stat_activity
const applicationName = "pgEdge Dataset Agent"

// PostgresStore keeps the dataset in a per-session schema and queries it
// over one connection
type PostgresStore struct {
	conn    *pgx.Conn
	schema  string
	timeout time.Duration
}

// NewPostgres connects and creates the session schema
func NewPostgres(ctx context.Context, connStr, sessionID string, timeout time.Duration) (*PostgresStore, error) {
	start := time.Now()

	enhanced, err := addApplicationName(connStr, applicationName)
	if err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseConfig(enhanced)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		logging.Error("postgres_connect_failed",
			"host", connConfig.Host,
			"database", connConfig.Database,
			"error", err,
		)
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	s := &PostgresStore{conn: conn, schema: sessionObjectName(sessionID), timeout: timeout}
	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	logging.Info("postgres_connected",
		"host", connConfig.Host,
		"database", connConfig.Database,
		"schema", s.schema,
		"duration", time.Since(start).String(),
	)
	return s, nil
}

// addApplicationName adds application_name to a connection URL
func addApplicationName(connStr, appName string) (string, error) {
	if !strings.Contains(connStr, "://") {
		// Keyword/value form
		if strings.Contains(connStr, "application_name") {
			return connStr, nil
		}
		return strings.TrimSpace(connStr + " application_name='" + appName + "'"), nil
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}

	query := u.Query()
	if !query.Has("application_name") {
		query.Set("application_name", appName)
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// Dialect implements Store
func (s *PostgresStore) Dialect() string {
	return "PostgreSQL"
}

// Load implements Store using COPY
func (s *PostgresStore) Load(ctx context.Context, table string, ds *dataset.Dataset, sch schema.Schema) error {
	start := time.Now()
	types := columnTypes(ds, sch)

	names := ds.ColumnNames()
	defs := make([]string, len(names))
	for i, name := range names {
		defs[i] = pgx.Identifier{name}.Sanitize() + " " + postgresType(types[i])
	}

	ident := pgx.Identifier{s.schema, table}
	if _, err := s.conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	rows := make([][]any, ds.NumRows())
	for r := range rows {
		row := make([]any, len(ds.Columns))
		for i, col := range ds.Columns {
			row[i] = cellValue(col.Values[r], types[i], false)
		}
		rows[r] = row
	}

	copied, err := s.conn.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy rows: %w", err)
	}

	logging.Info("dataset_loaded",
		"backend", "postgres",
		"table", table,
		"schema", s.schema,
		"rows", copied,
		"columns", len(names),
		"duration", time.Since(start).String(),
	)
	return nil
}

func postgresType(t columnType) string {
	switch t {
	case colInteger:
		return "BIGINT"
	case colReal:
		return "DOUBLE PRECISION"
	case colDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Execute implements Store
func (s *PostgresStore) Execute(ctx context.Context, q sanitize.Query) (*ResultSet, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, newExecutionError(q.SQL, err)
	}

	rs, err := s.query(ctx, tx, q.SQL)

	// Rollback needs a live context even when ctx has expired
	rbCtx, rbCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rbCancel()
	if rbErr := tx.Rollback(rbCtx); rbErr != nil && err == nil {
		logging.Warn("postgres_rollback_failed", "error", rbErr)
	}

	if err != nil {
		logging.Info("query_failed", "backend", "postgres", "sql", q.SQL, "error", err)
		return nil, newExecutionError(q.SQL, err)
	}

	logging.Debug("query_executed",
		"backend", "postgres",
		"rows", rs.Len(),
		"duration", time.Since(start).String(),
	)
	return rs, nil
}

func (s *PostgresStore) query(ctx context.Context, tx pgx.Tx, sql string) (*ResultSet, error) {
	// Set transaction to read-only
	if _, err := tx.Exec(ctx, "SET TRANSACTION READ ONLY"); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.timeout.Milliseconds())); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &ResultSet{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, fd := range fields {
		rs.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizePostgresValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// normalizePostgresValue converts pgx-specific values; numeric results
// such as SUM(bigint) arrive as pgtype.Numeric
func normalizePostgresValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if n, err := val.Int64Value(); err == nil && n.Valid && val.Exp >= 0 {
			return n.Int64
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return normalizeValue(v, false)
	}
}

// Close implements Store, dropping the session schema
func (s *PostgresStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, dropErr := s.conn.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{s.schema}.Sanitize()+" CASCADE")
	if dropErr != nil {
		logging.Warn("postgres_schema_drop_failed", "schema", s.schema, "error", dropErr)
	}
	if err := s.conn.Close(ctx); err != nil {
		return err
	}
	return dropErr
}
