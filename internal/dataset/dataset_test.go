/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestFromRecords(t *testing.T) {
	records := [][]string{
		{"", "", ""},
		{"date", "brand", "", "brand"},
		{"2024-01-01", " TESCO ", "x"},
		{"", "", "", ""},
		{"2024-02-01", "", "y", "dup"},
	}

	ds, err := FromRecords("purchases", records)
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}

	wantNames := []string{"date", "brand", "column_3", "brand_2"}
	if got := ds.ColumnNames(); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("ColumnNames() = %v, want %v", got, wantNames)
	}
	if ds.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", ds.NumRows())
	}

	// Values are trimmed, blanks and padded cells are nil
	if got := ds.Row(0); !reflect.DeepEqual(got, []any{"2024-01-01", "TESCO", "x", nil}) {
		t.Errorf("Row(0) = %#v", got)
	}
	if got := ds.Row(1); got[1] != nil || got[3] != "dup" {
		t.Errorf("Row(1) = %#v", got)
	}
	if ds.Column("BRAND") == nil {
		t.Error("Column lookup should be case-insensitive")
	}
}

func TestFromRecordsEmpty(t *testing.T) {
	if _, err := FromRecords("x", [][]string{{" ", ""}}); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
	ds, err := FromRecords("x", [][]string{{"a", "b"}})
	if err != nil {
		t.Fatalf("header only should load: %v", err)
	}
	if ds.NumRows() != 0 || len(ds.Columns) != 2 {
		t.Errorf("got %d rows, %d columns", ds.NumRows(), len(ds.Columns))
	}
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		wantCols  []string
		wantFirst []any
	}{
		{
			name:      "plain",
			input:     []byte("brand,spend\nTESCO,10\n"),
			wantCols:  []string{"brand", "spend"},
			wantFirst: []any{"TESCO", "10"},
		},
		{
			name:      "utf8 bom",
			input:     append([]byte{0xEF, 0xBB, 0xBF}, []byte("brand,spend\nASDA,3\n")...),
			wantCols:  []string{"brand", "spend"},
			wantFirst: []any{"ASDA", "3"},
		},
		{
			name:      "windows-1252 pound sign",
			input:     []byte("brand,price\nLIDL,\xa35\n"),
			wantCols:  []string{"brand", "price"},
			wantFirst: []any{"LIDL", "£5"},
		},
		{
			name:      "semicolon delimited",
			input:     []byte("brand;spend\n\"A;B\";1,5\n"),
			wantCols:  []string{"brand", "spend"},
			wantFirst: []any{"A;B", "1,5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ReadCSV(bytes.NewReader(tt.input), "t", 0)
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			if got := ds.ColumnNames(); !reflect.DeepEqual(got, tt.wantCols) {
				t.Errorf("columns = %v, want %v", got, tt.wantCols)
			}
			if got := ds.Row(0); !reflect.DeepEqual(got, tt.wantFirst) {
				t.Errorf("Row(0) = %#v, want %#v", got, tt.wantFirst)
			}
		})
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	// Sheet1 stays empty; data lives on the second sheet
	if _, err := f.NewSheet("Data"); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"date", "brand", "spend"},
		{"2024-01-01", "TESCO", 12.5},
		{"2024-01-02", "ASDA", 7},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Data", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	ds, err := ReadXLSX(buf, "book")
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}
	if got := ds.ColumnNames(); !reflect.DeepEqual(got, []string{"date", "brand", "spend"}) {
		t.Errorf("columns = %v", got)
	}
	if ds.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", ds.NumRows())
	}
	if got := ds.Row(0)[2]; got != "12.5" {
		t.Errorf("spend cell = %#v, want \"12.5\"", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "purchase.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	ds, err := Load(csvPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.Name != "purchase" {
		t.Errorf("Name = %q, want purchase", ds.Name)
	}

	if _, err := Read(strings.NewReader("x"), "data.parquet"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPreview(t *testing.T) {
	ds, _ := FromRecords("p", [][]string{{"a"}, {"1"}, {"2"}, {"3"}})
	if got := len(ds.Preview(2)); got != 2 {
		t.Errorf("Preview(2) = %d rows", got)
	}
	if got := len(ds.Preview(10)); got != 3 {
		t.Errorf("Preview(10) = %d rows", got)
	}
}
