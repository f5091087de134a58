package patient

import (
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("patient record not found")
	ErrServerFault = errors.New("server fault")
)

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "patient validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}
