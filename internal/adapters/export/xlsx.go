// Package export provides adapters for rendering completed mapping runs.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/appatlas/appmap/internal/domain"
)

// Sheet names in the exported workbook.
const (
	mappingsSheet = "Mappings"
	summarySheet  = "Summary"
)

// mappingHeader is the column order of the Mappings sheet.
var mappingHeader = []string{
	"Physical ID", "Physical Name", "Logical ID", "Logical Name",
	"Similarity", "Uncertain", "Auto Substituted", "Model Logical ID",
	"Mismatch Reason", "Rationale",
}

// WorkbookWriter implements domain.ResultExporter, rendering a run to an
// xlsx workbook with one sheet of mapping rows and one summary sheet.
type WorkbookWriter struct{}

// NewWorkbookWriter creates a new WorkbookWriter.
func NewWorkbookWriter() *WorkbookWriter {
	return &WorkbookWriter{}
}

// WriteWorkbook writes the mappings and summary as a workbook to w.
func (e *WorkbookWriter) WriteWorkbook(w io.Writer, mappings []domain.MappingRecord, summary domain.RunSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", mappingsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	if err := writeRow(f, mappingsSheet, 1, toCells(mappingHeader)); err != nil {
		return err
	}
	for i, rec := range mappings {
		row := []interface{}{
			rec.PhysicalID, rec.PhysicalName, rec.LogicalID, rec.LogicalName,
			rec.Similarity, rec.Uncertain, rec.AutoSubstituted, rec.ModelLogicalID,
			rec.MismatchReason, rec.Rationale,
		}
		if err := writeRow(f, mappingsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summaryRows := [][]interface{}{
		{"Physical Applications", summary.PhysicalCount},
		{"Logical Applications", summary.LogicalCount},
		{"Mapped", summary.MappedCount},
		{"Uncertain", summary.UncertainCount},
		{"MECE Coverage", summary.MECECoverage},
	}
	for i, row := range summaryRows {
		if err := writeRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeRow writes one row of values starting at column A.
func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("invalid cell coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
