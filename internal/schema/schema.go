/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package schema derives a typed description of an uploaded dataset.
package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Kind classifies a column
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindDatetime    Kind = "datetime"
	KindUnknown     Kind = "unknown"
)

// DateLayout is the layout used when dates are written out
const DateLayout = "2006-01-02"

// ColumnDescriptor describes one column. Values is set for categorical
// columns, Min and Max for datetime columns.
type ColumnDescriptor struct {
	Kind   Kind
	Values []string
	Min    time.Time
	Max    time.Time
}

// MarshalJSON writes only the fields relevant to the kind
func (d ColumnDescriptor) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindCategorical:
		values := d.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(struct {
			Type   Kind     `json:"type"`
			Values []string `json:"values"`
		}{d.Kind, values})
	case KindDatetime:
		return json.Marshal(struct {
			Type Kind   `json:"type"`
			Min  string `json:"min"`
			Max  string `json:"max"`
		}{d.Kind, d.Min.Format(DateLayout), d.Max.Format(DateLayout)})
	default:
		return json.Marshal(struct {
			Type Kind `json:"type"`
		}{d.Kind})
	}
}

// Field is a named column descriptor
type Field struct {
	Name string
	ColumnDescriptor
}

// Schema lists every dataset column once, in source order
type Schema struct {
	Fields []Field
}

// Names returns the column names in order
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup finds a column by case-insensitive name
func (s Schema) Lookup(name string) (ColumnDescriptor, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.ColumnDescriptor, true
		}
	}
	return ColumnDescriptor{}, false
}

// Categorical returns the categorical fields
func (s Schema) Categorical() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind == KindCategorical {
			out = append(out, f)
		}
	}
	return out
}

// LatestDate returns the maximum date of the first datetime column
func (s Schema) LatestDate() (column string, max time.Time, ok bool) {
	for _, f := range s.Fields {
		if f.Kind == KindDatetime {
			return f.Name, f.Max, true
		}
	}
	return "", time.Time{}, false
}

// MarshalJSON writes {"columns": {...}} keeping the column order
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":{`)
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(f.ColumnDescriptor)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// Limit returns a copy with at most n categorical values per column, for prompts
func (s Schema) Limit(n int) Schema {
	out := Schema{Fields: make([]Field, len(s.Fields))}
	copy(out.Fields, s.Fields)
	if n <= 0 {
		return out
	}
	for i := range out.Fields {
		if len(out.Fields[i].Values) > n {
			out.Fields[i].Values = out.Fields[i].Values[:n]
		}
	}
	return out
}

// String returns the indented JSON form
func (s Schema) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
