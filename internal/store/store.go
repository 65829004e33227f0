/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package store holds the relational copy of an uploaded dataset and runs
// sanitized queries against it in read-only transactions.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/schema"
)

// Store is one session's copy of the dataset
type Store interface {
	// Dialect names the SQL dialect for prompts
	Dialect() string

	// Load creates table and fills it from the coerced dataset
	Load(ctx context.Context, table string, ds *dataset.Dataset, s schema.Schema) error

	// Execute runs a sanitized query in a read-only transaction that is
	// always rolled back
	Execute(ctx context.Context, q sanitize.Query) (*ResultSet, error)

	// Close releases the connection and drops the session's objects
	Close() error
}

// ExecutionError carries the store's message for a failed query
type ExecutionError struct {
	Query   string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func newExecutionError(query string, err error) *ExecutionError {
	return &ExecutionError{Query: query, Message: err.Error(), Err: err}
}

// DefaultStatementTimeout applies when none is configured
const DefaultStatementTimeout = 30 * time.Second

// insertBatchRows bounds multi-row inserts
const insertBatchRows = 200

// New opens a store for a session using the configured backend
func New(ctx context.Context, cfg config.StoreConfig, sessionID string) (Store, error) {
	timeout := time.Duration(cfg.StatementTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return NewSQLite(cfg.SQLiteDir, sessionID, timeout)
	case "postgres", "postgresql":
		return NewPostgres(ctx, cfg.Postgres.BuildConnectionString(), sessionID, timeout)
	case "mysql":
		return NewMySQL(ctx, cfg.MySQL.DSN, sessionID, timeout)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// sessionObjectName derives a schema or database name from a session id
func sessionObjectName(sessionID string) string {
	var sb strings.Builder
	sb.WriteString("session_")
	for _, r := range strings.ToLower(sessionID) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// columnType picks the storage type of a column
type columnType int

const (
	colText columnType = iota
	colInteger
	colReal
	colDate
)

func columnTypes(ds *dataset.Dataset, s schema.Schema) []columnType {
	types := make([]columnType, len(ds.Columns))
	for i, col := range ds.Columns {
		desc, _ := s.Lookup(col.Name)
		switch desc.Kind {
		case schema.KindNumeric:
			types[i] = colInteger
			for _, v := range col.Values {
				if _, ok := v.(float64); ok {
					types[i] = colReal
					break
				}
			}
		case schema.KindDatetime:
			types[i] = colDate
		default:
			types[i] = colText
		}
	}
	return types
}

// cellValue converts a dataset cell for insertion into a column
func cellValue(v any, t columnType, datesAsText bool) any {
	if v == nil {
		return nil
	}
	switch t {
	case colDate:
		d, ok := v.(time.Time)
		if !ok {
			return nil
		}
		if datesAsText {
			return d.Format(schema.DateLayout)
		}
		return d
	case colInteger:
		if n, ok := v.(int64); ok {
			return n
		}
		return nil
	case colReal:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
		return nil
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

// quoteIdent quotes an identifier with the given quote character
func quoteIdent(name string, quote byte) string {
	q := string(quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}
