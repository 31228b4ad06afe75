package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a resource kind outside the supported set.
	ErrUnknownKind = errors.New("unknown resource kind")

	// ErrMissingField marks a required field that is absent or null.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidTimestamp marks a timestamp that could not be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidShape marks a record with the wrong JSON type.
	ErrInvalidShape = errors.New("unexpected record shape")
)

// RecordParseError reports a single record that was skipped.
type RecordParseError struct {
	// Index is the record's position within its page.
	Index int
	Kind  ResourceKind
	Field string
	Err   error
}

// Error implements the error interface.
func (e *RecordParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse %s record %d: field %s: %v", e.Kind, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s record %d: %v", e.Kind, e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RecordParseError) Unwrap() error {
	return e.Err
}

// fieldError is returned by decoders and completed with index and kind by Parse.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.err.Error()
}

func errField(field string, err error) error {
	return &fieldError{field: field, err: err}
}
