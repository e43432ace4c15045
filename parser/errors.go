package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContentFound means the page has no table cell to parse.
	ErrNoContentFound = errors.New("parser: no content found")
	// ErrNoBody means a fragment could not be parsed into a document body.
	ErrNoBody = errors.New("parser: body not found")
	// ErrMalformedStatisticsRow means a statistics row could not be decoded.
	ErrMalformedStatisticsRow = errors.New("parser: malformed statistics row")
)

// FieldError reports a value that could not be coerced into its field type.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("parse %s from %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
