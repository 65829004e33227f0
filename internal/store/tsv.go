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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatValue converts a value to its TSV string form. NULL is an empty
// string; tabs and newlines are escaped so each row stays on one line.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	case time.Time:
		s = formatTime(val)
	case bool:
		s = strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprintf("%d", val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []any, map[string]any:
		jsonBytes, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(jsonBytes)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}

	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")

	return s
}

// TSV formats the header and at most maxRows rows; maxRows <= 0 means all.
// The second result reports whether rows were left out.
func (r *ResultSet) TSV(maxRows int) (string, bool) {
	if r == nil || len(r.Columns) == 0 {
		return "", false
	}

	rows := r.Rows
	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	var sb strings.Builder
	header := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = FormatValue(c)
	}
	sb.WriteString(strings.Join(header, "\t"))

	values := make([]string, len(r.Columns))
	for _, row := range rows {
		sb.WriteString("\n")
		for i, val := range row {
			values[i] = FormatValue(val)
		}
		sb.WriteString(strings.Join(values[:len(row)], "\t"))
	}

	return sb.String(), truncated
}
