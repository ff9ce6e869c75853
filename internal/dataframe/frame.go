// Package dataframe loads tabular CSV data into a small column-oriented
// frame used by the statistics and training services.
package dataframe

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ternarybob/trutina/internal/apperr"
)

// Frame is an in-memory table. Cells are kept as strings; numeric views
// are materialized on demand.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// LoadCSV reads a CSV file into a frame, capped at sampleLimit rows.
// sampleLimit <= 0 means unlimited.
func LoadCSV(path string, sampleLimit int) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to open dataset file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	frame := &Frame{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to read CSV row")
		}
		// pad or trim ragged rows to the header width
		if len(record) < len(header) {
			padded := make([]string, len(header))
			copy(padded, record)
			record = padded
		} else if len(record) > len(header) {
			record = record[:len(header)]
		}
		frame.Rows = append(frame.Rows, record)
		if sampleLimit > 0 && len(frame.Rows) >= sampleLimit {
			break
		}
	}
	return frame, nil
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return len(f.Rows) }

// ColumnIndex returns the position of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, col := range f.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool { return f.ColumnIndex(name) >= 0 }

// Column returns the raw string values of one column.
func (f *Frame) Column(name string) []string {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		values[i] = row[idx]
	}
	return values
}

// IsNumeric reports whether at least 80% of the column's non-empty cells
// parse as floats. Columns with no non-empty cells are not numeric.
func (f *Frame) IsNumeric(name string) bool {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return false
	}
	parsed, nonEmpty := 0, 0
	for _, row := range f.Rows {
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		nonEmpty++
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			parsed++
		}
	}
	if nonEmpty == 0 {
		return false
	}
	return float64(parsed)/float64(nonEmpty) >= 0.8
}

// NumericColumns lists the columns that satisfy IsNumeric, excluding any
// names in the skip set.
func (f *Frame) NumericColumns(skip ...string) []string {
	skipSet := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipSet[name] = struct{}{}
	}
	var numeric []string
	for _, col := range f.Columns {
		if _, excluded := skipSet[col]; excluded {
			continue
		}
		if f.IsNumeric(col) {
			numeric = append(numeric, col)
		}
	}
	return numeric
}

// NumericColumn returns the column as float64 with unparseable and empty
// cells filled with zero.
func (f *Frame) NumericColumn(name string) []float64 {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64); err == nil {
			values[i] = v
		}
	}
	return values
}

// Matrix builds a row-major feature matrix from the named columns with
// missing values filled with zero.
func (f *Frame) Matrix(columns []string) [][]float64 {
	indexes := make([]int, len(columns))
	for i, name := range columns {
		indexes[i] = f.ColumnIndex(name)
	}
	matrix := make([][]float64, len(f.Rows))
	for r, row := range f.Rows {
		features := make([]float64, len(columns))
		for c, idx := range indexes {
			if idx < 0 {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64); err == nil {
				features[c] = v
			}
		}
		matrix[r] = features
	}
	return matrix
}
