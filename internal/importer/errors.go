package importer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is wrapped by the DecodeError returned for files without data rows.
var ErrNoData = errors.New("file contains no data")

// AcceptedExtensions lists the upload formats, in the order shown to users.
var AcceptedExtensions = []string{".xlsx", ".xls", ".csv"}

// UnsupportedFormatError rejects a file before decoding on its name alone.
type UnsupportedFormatError struct {
	Filename string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format for %q: use Excel (.xlsx, .xls) or CSV (.csv)", e.Filename)
}

// DecodeError reports a file that could not be turned into records at all.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrNoData) {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError names every required column absent from the header row, using
// the canonical spelling of the schema.
type SchemaError struct {
	Kind    Kind
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing columns: " + strings.Join(e.Missing, ", ")
}

// CommitError is one record the storage collaborator refused.
type CommitError struct {
	RowNumber int
	Product   string
	Err       error
}

func (e *CommitError) Error() string {
	if e.Product != "" {
		return fmt.Sprintf("row %d (%s): %v", e.RowNumber, e.Product, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.RowNumber, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Warning is a field that was coerced to its default instead of rejecting the row.
type Warning struct {
	RowNumber int    `json:"rowNumber"`
	Column    string `json:"column"`
	RawValue  string `json:"rawValue"`
	Message   string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("row %d: %s %q: %s", w.RowNumber, w.Column, w.RawValue, w.Message)
}

var errNoStorage = errors.New("no storage configured")
