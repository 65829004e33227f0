/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package dataset loads uploaded tabular files into a column-major table.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX
	ErrUnsupportedFormat = errors.New("unsupported file format (expected .csv, .tsv or .xlsx)")

	// ErrEmpty is returned when a file has no header row
	ErrEmpty = errors.New("dataset is empty")
)

// Column is a named column of cell values. A cell is nil, string, int64,
// float64 or time.Time.
type Column struct {
	Name   string
	Values []any
}

// Dataset is an ordered set of equally long columns
type Dataset struct {
	Name    string
	Columns []*Column
}

// NumRows returns the number of data rows
func (d *Dataset) NumRows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// ColumnNames returns the column names in source order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column finds a column by case-insensitive name
func (d *Dataset) Column(name string) *Column {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Row returns the values of row i in column order
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.Columns))
	for j, c := range d.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// Preview returns up to n leading rows
func (d *Dataset) Preview(n int) [][]any {
	if n > d.NumRows() {
		n = d.NumRows()
	}
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		rows[i] = d.Row(i)
	}
	return rows
}

// FromRecords builds a dataset from string records whose first record is
// the header. Short rows are padded, blank rows skipped and blank cells
// become nil.
func FromRecords(name string, records [][]string) (*Dataset, error) {
	// Leading blank rows are not a header
	for len(records) > 0 && isBlank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	width := 0
	for _, r := range records {
		if len(r) > width {
			width = len(r)
		}
	}

	ds := &Dataset{Name: name, Columns: make([]*Column, width)}
	for i, header := range headerNames(records[0], width) {
		ds.Columns[i] = &Column{Name: header}
	}

	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		for i, col := range ds.Columns {
			var cell any
			if i < len(record) {
				if v := strings.TrimSpace(record[i]); v != "" {
					cell = v
				}
			}
			col.Values = append(col.Values, cell)
		}
	}

	return ds, nil
}

// headerNames names blank headers column_N and suffixes duplicates
func headerNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			candidate := fmt.Sprintf("%s_%d", name, n+1)
			for seen[strings.ToLower(candidate)] > 0 {
				n++
				candidate = fmt.Sprintf("%s_%d", name, n+1)
			}
			seen[key] = n + 1
			name = candidate
			key = strings.ToLower(name)
		}
		seen[key]++
		names[i] = name
	}
	return names
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Load reads a dataset file, choosing the parser from the extension
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path))
}

// Read parses r according to the extension of filename
func Read(r io.Reader, filename string) (*Dataset, error) {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return ReadCSV(r, name, 0)
	case ".tsv":
		return ReadCSV(r, name, '\t')
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, name)
	default:
		return nil, ErrUnsupportedFormat
	}
}
