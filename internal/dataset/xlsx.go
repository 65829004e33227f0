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
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pgedge-dataset-agent/internal/logging"
)

// ReadXLSX loads the first sheet that contains data
func ReadXLSX(r io.Reader, name string) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("excel_close_failed", "error", err)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in excel file")
	}

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logging.Warn("excel_sheet_skipped", "sheet", sheet, "error", err)
			continue
		}
		ds, err := FromRecords(name, rows)
		if err == ErrEmpty {
			continue
		}
		if err != nil {
			return nil, err
		}
		logging.Debug("excel_sheet_loaded", "sheet", sheet, "rows", ds.NumRows())
		return ds, nil
	}

	return nil, ErrEmpty
}
