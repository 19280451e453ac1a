// Package dataset provides adapters for reading tabular application
// inventories into domain records.
package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/appatlas/appmap/internal/domain"
)

// TableExtractor implements domain.DatasetExtractor for xlsx and csv files.
// The format is detected from the filename extension.
type TableExtractor struct{}

// NewTableExtractor creates a new TableExtractor.
func NewTableExtractor() *TableExtractor {
	return &TableExtractor{}
}

// Extract parses the dataset into ordered application records.
func (e *TableExtractor) Extract(
	_ context.Context,
	r io.Reader,
	filename string,
	opts domain.ExtractOptions,
) ([]domain.ApplicationRecord, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, err
	}

	return buildRecords(rows, opts)
}

// readXLSX reads all rows of the first sheet.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.ErrEmptyDataset
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// readCSV reads all rows, tolerating ragged row lengths.
func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return rows, nil
}

// buildRecords resolves the requested columns against the header row and
// assembles one record per data row. Rows with a blank id cell are skipped;
// duplicate ids are deliberately left intact for run validation to reject,
// so the caller sees which id is duplicated rather than a silent merge.
func buildRecords(rows [][]string, opts domain.ExtractOptions) ([]domain.ApplicationRecord, error) {
	if len(rows) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	header := rows[0]
	idIdx, err := findColumn(header, opts.IDColumn)
	if err != nil {
		return nil, err
	}

	// The name column is optional; records fall back to the id.
	nameIdx := -1
	if opts.NameColumn != "" {
		nameIdx, err = findColumn(header, opts.NameColumn)
		if err != nil {
			return nil, err
		}
	}

	if len(opts.TextColumns) == 0 {
		return nil, fmt.Errorf("%w: no text columns requested", domain.ErrColumnNotFound)
	}
	textIdx := make([]int, 0, len(opts.TextColumns))
	for _, col := range opts.TextColumns {
		idx, err := findColumn(header, col)
		if err != nil {
			return nil, err
		}
		textIdx = append(textIdx, idx)
	}

	records := make([]domain.ApplicationRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := strings.TrimSpace(cell(row, idIdx))
		if id == "" {
			continue
		}

		name := id
		if nameIdx >= 0 {
			if n := strings.TrimSpace(cell(row, nameIdx)); n != "" {
				name = n
			}
		}

		parts := make([]string, 0, len(textIdx))
		for _, idx := range textIdx {
			if v := strings.TrimSpace(cell(row, idx)); v != "" {
				parts = append(parts, v)
			}
		}

		records = append(records, domain.ApplicationRecord{
			ID:          id,
			Name:        name,
			TextContent: strings.Join(parts, " "),
		})
	}

	if len(records) == 0 {
		return nil, domain.ErrEmptyDataset
	}
	return records, nil
}

// findColumn locates a header column by case-insensitive name.
func findColumn(header []string, name string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", domain.ErrColumnNotFound, name)
}

// cell returns row[idx] or "" when the row is shorter than the header.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
