/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package schema

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
)

// Options controls introspection
type Options struct {
	DateColumn string // Column coerced to dates; matched case-insensitively
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
	"02-Jan-2006",
	"Jan 2006",
	"2006-01",
	"2006",
}

var thousandsPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// Introspect classifies every column and replaces the dataset's values with
// their coerced form. Running it again on the coerced dataset yields the
// same schema.
func Introspect(ds *dataset.Dataset, opts Options) Schema {
	if opts.DateColumn == "" {
		opts.DateColumn = "date"
	}

	s := Schema{Fields: make([]Field, 0, len(ds.Columns))}
	for _, col := range ds.Columns {
		if strings.EqualFold(col.Name, opts.DateColumn) {
			coerceDates(col)
		} else {
			coerceNumbers(col)
		}
		desc := classify(col.Values)
		s.Fields = append(s.Fields, Field{Name: col.Name, ColumnDescriptor: desc})
	}

	logging.Debug("schema_introspected", "dataset", ds.Name, "columns", len(s.Fields), "rows", ds.NumRows())
	return s
}

// coerceDates parses every value as a date; unparseable values become nil
func coerceDates(col *dataset.Column) {
	failed := 0
	for i, v := range col.Values {
		switch x := v.(type) {
		case nil:
		case time.Time:
		case string:
			if t, ok := ParseDate(x); ok {
				col.Values[i] = t
			} else {
				col.Values[i] = nil
				failed++
			}
		default:
			col.Values[i] = nil
			failed++
		}
	}
	if failed > 0 {
		logging.Warn("date_values_nulled", "column", col.Name, "count", failed)
	}
}

// ParseDate tries the supported layouts in order
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// coerceNumbers converts the column when every non-null value is numeric
func coerceNumbers(col *dataset.Column) {
	parsed := make([]float64, len(col.Values))
	seen := false
	integral := true

	for i, v := range col.Values {
		var f float64
		switch x := v.(type) {
		case nil:
			continue
		case int64:
			f = float64(x)
		case float64:
			f = x
		case string:
			var ok bool
			if f, ok = ParseNumber(x); !ok {
				return
			}
		default:
			return
		}
		seen = true
		parsed[i] = f
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			integral = false
		}
	}
	if !seen {
		return
	}

	for i, v := range col.Values {
		if v == nil {
			continue
		}
		if integral {
			col.Values[i] = int64(parsed[i])
		} else {
			col.Values[i] = parsed[i]
		}
	}
}

// ParseNumber accepts plain numbers, thousands separators and a leading
// currency symbol. Percentages are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "%") {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	for _, symbol := range []string{"£", "$", "€"} {
		if strings.HasPrefix(s, symbol) {
			s = strings.TrimSpace(strings.TrimPrefix(s, symbol))
			break
		}
	}
	if strings.Contains(s, ",") {
		if !thousandsPattern.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// ParseFloat accepts hex and underscores; datasets do not mean those
	if strings.ContainsAny(s, "xX_pP") || strings.EqualFold(s, "inf") {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// classify applies numeric, categorical, datetime, unknown in that order
func classify(values []any) ColumnDescriptor {
	var (
		numeric, text, dates int
		distinct             = make(map[string]struct{})
		min, max             time.Time
	)

	for _, v := range values {
		switch x := v.(type) {
		case nil:
		case int64, float64:
			numeric++
		case string:
			text++
			distinct[x] = struct{}{}
		case time.Time:
			if dates == 0 || x.Before(min) {
				min = x
			}
			if dates == 0 || x.After(max) {
				max = x
			}
			dates++
		}
	}

	total := numeric + text + dates
	switch {
	case total == 0:
		return ColumnDescriptor{Kind: KindUnknown}
	case numeric == total:
		return ColumnDescriptor{Kind: KindNumeric}
	case text == total:
		vals := make([]string, 0, len(distinct))
		for v := range distinct {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		return ColumnDescriptor{Kind: KindCategorical, Values: vals}
	case dates == total:
		return ColumnDescriptor{Kind: KindDatetime, Min: min, Max: max}
	default:
		return ColumnDescriptor{Kind: KindUnknown}
	}
}
