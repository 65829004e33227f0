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
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/schema"
)

// ResultSet holds query rows in the store's column order. An empty Rows
// is a valid result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Row returns row i as an ordered mapping
func (r *ResultSet) Row(i int) Row {
	return Row{Columns: r.Columns, Values: r.Rows[i]}
}

// Records returns every row as an ordered mapping
func (r *ResultSet) Records() []Row {
	records := make([]Row, r.Len())
	for i := range records {
		records[i] = r.Row(i)
	}
	return records
}

// MarshalJSON writes {"columns": [...], "rows": [{...}, ...]}
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Rows    []Row    `json:"rows"`
	}{columns, r.Records()})
}

// Row maps column names to values in column order
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes an object whose keys keep the column order
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeValue converts driver values to nil, string, int64, float64
// or bool
func normalizeValue(v any, numeric bool) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(string(val), numeric)
	case string:
		return normalizeText(val, numeric)
	case time.Time:
		return formatTime(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// normalizeText parses text from a numeric column
func normalizeText(s string, numeric bool) any {
	if !numeric {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// formatTime writes dates without a time part when there is none
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(schema.DateLayout)
	}
	return t.Format(time.RFC3339)
}

// numericTypeNames are database type names whose text form is a number
var numericTypeNames = map[string]bool{
	"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true,
	"MEDIUMINT": true, "BIGINT": true, "UNSIGNED INT": true,
	"UNSIGNED BIGINT": true, "UNSIGNED TINYINT": true, "UNSIGNED SMALLINT": true,
	"UNSIGNED MEDIUMINT": true, "DECIMAL": true, "NUMERIC": true,
	"FLOAT": true, "DOUBLE": true, "REAL": true,
}

// scanRows reads database/sql rows into a ResultSet
func scanRows(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	numeric := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			numeric[i] = numericTypeNames[strings.ToUpper(ct.DatabaseTypeName())]
		}
	}

	rs := &ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v, numeric[i])
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
