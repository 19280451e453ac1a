// Package domain defines the core business entities and interfaces for appmap.
// This package contains no external dependencies and represents the innermost
// layer of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
	"io"
)

// Domain errors for dataset extraction and export.
var (
	// ErrUnsupportedFormat indicates the uploaded file is neither xlsx nor csv.
	ErrUnsupportedFormat = errors.New("unsupported dataset format; expected .xlsx or .csv")

	// ErrColumnNotFound indicates a requested column is missing from the header row.
	ErrColumnNotFound = errors.New("column not found in dataset header")

	// ErrEmptyDataset indicates the file contained a header but no data rows.
	ErrEmptyDataset = errors.New("dataset contains no data rows")
)

// ValidationError reports malformed run input. It aborts the entire run
// before any oracle call is issued; every other failure mode is absorbed
// into individual mapping records.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid mapping input: " + e.Reason
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MappingOracle proposes a logical application for one physical application.
// Implementations are treated as unreliable: calls may time out, fail, or
// return a LogicalID that does not exist in the candidate set. Callers own
// retry and repair.
type MappingOracle interface {
	// Map scores one physical application against the full logical candidate
	// set. runContext is optional caller-supplied free text.
	Map(ctx context.Context, physical ApplicationRecord, logicals []ApplicationRecord, runContext string) (*OracleResult, error)
}

// ExtractOptions selects the columns used to build application records from
// a tabular dataset.
type ExtractOptions struct {
	// IDColumn is the header name of the unique identifier column.
	IDColumn string

	// NameColumn is the header name of the display name column.
	NameColumn string

	// TextColumns are the header names whose cell values are concatenated
	// into TextContent, in the given order.
	TextColumns []string
}

// DatasetExtractor reads an uploaded tabular file into ordered application
// records. Rows with a blank id cell are skipped; duplicate ids are left for
// run validation to reject.
type DatasetExtractor interface {
	// Extract parses the dataset. filename is used only to detect the format
	// from its extension.
	Extract(ctx context.Context, r io.Reader, filename string, opts ExtractOptions) ([]ApplicationRecord, error)
}

// ResultExporter renders a completed run to a spreadsheet-compatible binary
// format.
type ResultExporter interface {
	// WriteWorkbook writes the mappings and summary as a workbook to w.
	WriteWorkbook(w io.Writer, mappings []MappingRecord, summary RunSummary) error
}
