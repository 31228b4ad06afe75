package query

import (
	"errors"
	"fmt"
)

// ErrEmptyKey is returned when a parameter key is empty.
var ErrEmptyKey = errors.New("empty query parameter key")

// InvalidFilterError reports a malformed filter descriptor.
// It is raised before any network activity takes place.
type InvalidFilterError struct {
	// Index is the position of the descriptor in the merged sequence (-1 when unknown).
	Index int
	// Kind is the descriptor kind, e.g. "bbox" or "datetime_range".
	Kind   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *InvalidFilterError) Error() string {
	msg := fmt.Sprintf("invalid %s filter", e.Kind)
	if e.Index >= 0 {
		msg = fmt.Sprintf("invalid %s filter at position %d", e.Kind, e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *InvalidFilterError) Unwrap() error {
	return e.Err
}

func invalid(kind, format string, args ...any) *InvalidFilterError {
	return &InvalidFilterError{Index: -1, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
