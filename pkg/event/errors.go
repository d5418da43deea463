package event

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat indicates a raw payload matched none of the known
// upstream event shapes.
var ErrUnsupportedFormat = errors.New("unsupported event format")

// ValidationError indicates a cost event failed the ingest contract.
type ValidationError struct {
	Field  string
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid cost event: %s: %s", e.Field, e.Reason)
}

// ParseError indicates a raw payload was recognized but could not be
// normalized into a valid CostEvent.
type ParseError struct {
	Format string
	Cause  error
}

// Error returns the error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Format, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
