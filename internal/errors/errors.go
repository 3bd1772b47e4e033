// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeInput indicates a malformed or out-of-domain input
	TypeInput Type = "INPUT_ERROR"

	// TypeValidation indicates one or more business rule violations
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeNotFound indicates a lookup produced no row
	TypeNotFound Type = "NOT_FOUND"

	// TypeIntegrity indicates a table holds conflicting rows
	TypeIntegrity Type = "DATA_INTEGRITY"

	// TypeParsing indicates an import file could not be parsed
	TypeParsing Type = "PARSING_ERROR"

	// TypeStorage indicates the table store failed
	TypeStorage Type = "STORAGE_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// FieldError is a single problem attributed to an input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
	Fields  []FieldError           `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Table returns the table a NOT_FOUND or DATA_INTEGRITY error refers to
func (e *Error) Table() string {
	if t, ok := e.Context["table"].(string); ok {
		return t
	}
	return ""
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if any error in err's chain is of a specific type
func IsType(err error, t Type) bool {
	if e, ok := As(err); ok {
		return e.Type == t
	}
	return false
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}

// InputField creates an input error attributed to a single field
func InputField(field, message string) *Error {
	e := New(TypeInput, message)
	e.Fields = []FieldError{{Field: field, Message: message}}
	return e
}

// Validation creates a validation failure carrying every violation
func Validation(fields []FieldError) *Error {
	e := New(TypeValidation, "Validation failed")
	e.Fields = append([]FieldError(nil), fields...)
	return e
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// Storage creates a storage error
func Storage(message string, cause error) *Error {
	return Wrap(TypeStorage, message, cause)
}

// NotFound creates a not found error for a table lookup
func NotFound(table, identifier string) *Error {
	msg := fmt.Sprintf("%s not found", table)
	if identifier != "" {
		msg = fmt.Sprintf("%s not found: %s", table, identifier)
	}
	return New(TypeNotFound, msg).WithContext("table", table)
}

// Integrity creates a data integrity error for an ambiguous table lookup
func Integrity(table string, candidates int) *Error {
	return Newf(TypeIntegrity, "%d %s rows active for the same key", candidates, table).
		WithContext("table", table).
		WithContext("candidates", candidates)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
