// Package apperrors holds the error taxonomy shared by the pipeline stages.
//
// Stage code wraps these sentinels with github.com/pkg/errors so that callers
// can branch on the category with errors.Is while still getting the full
// context string.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch marks a raw record that does not conform to its
	// declared schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrWriteFailure marks a table write that could not be committed.
	ErrWriteFailure = errors.New("write failure")

	// ErrConfiguration marks missing or invalid configuration. It is raised
	// before any stage runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotCommitted is returned when reading a table location that has no
	// commit marker.
	ErrNotCommitted = errors.New("table not committed")
)

// SchemaMismatchError describes a single non-conforming raw record.
type SchemaMismatchError struct {
	Source string // object name the record came from
	Record int    // 1-based record number within the source
	Field  string // source key, empty when the record itself is malformed
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: record %d: %s", e.Source, e.Record, e.Reason)
	}
	return fmt.Sprintf("%s: record %d: field %q: %s", e.Source, e.Record, e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrSchemaMismatch) match.
func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }
