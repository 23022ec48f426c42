// Package validation provides strict decoding for data crossing the
// process boundary: district catalogs, grid files and published artifacts.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SchemaError reports input that does not match its declared schema.
// Errors of this type abort a pipeline cycle.
type SchemaError struct {
	// Source names the input, e.g. a file path.
	Source string

	// Field is the offending field, if known.
	Field string

	// Reason describes the violation.
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}
	if e.Field != "" {
		b.WriteString(": field ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// NewSchemaError creates a SchemaError.
func NewSchemaError(source, field, reason string) *SchemaError {
	return &SchemaError{Source: source, Field: field, Reason: reason}
}

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// DecodeStrict decodes exactly one JSON value from r into v, rejecting
// unknown fields, type mismatches and trailing data.
func DecodeStrict(r io.Reader, v any, source string) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return toSchemaError(err, source)
	}
	if dec.More() {
		return NewSchemaError(source, "", "unexpected trailing data")
	}
	return nil
}

func toSchemaError(err error, source string) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &typeErr):
		return NewSchemaError(source, typeErr.Field,
			fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
	case errors.As(err, &syntaxErr):
		return NewSchemaError(source, "", fmt.Sprintf("malformed json at offset %d", syntaxErr.Offset))
	case errors.Is(err, io.EOF):
		return NewSchemaError(source, "", "empty document")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return NewSchemaError(source, field, "unknown field")
	default:
		return NewSchemaError(source, "", err.Error())
	}
}
