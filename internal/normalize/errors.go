package normalize

import "fmt"

// ErrorKind classifies parse failures.
type ErrorKind string

// KindUnrecognizedFormat means the text matched no supported grammar.
const KindUnrecognizedFormat ErrorKind = "unrecognized_format"

// Field names used in ParseError and validation reasons.
const (
	FieldViews     = "views"
	FieldPublished = "published"
	FieldDuration  = "duration"
)

// ParseError reports a field that could not be converted.
type ParseError struct {
	Field string
	Kind  ErrorKind
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s: %q", e.Field, e.Kind, e.Input)
}

func unrecognized(field, input string) *ParseError {
	return &ParseError{Field: field, Kind: KindUnrecognizedFormat, Input: input}
}
