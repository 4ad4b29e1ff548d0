package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeFatal aborts the whole run (connection loss, auth, missing extension)
	ErrorTypeFatal ErrorType = "fatal"
	// ErrorTypeConflict is an idempotent "already exists" condition
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeRow is confined to a single source row
	ErrorTypeRow ErrorType = "row"
	// ErrorTypeEncode is a value that cannot be rendered as a query literal
	ErrorTypeEncode ErrorType = "encode"
	// ErrorTypeMissingStorage means the storage object behind a label does not exist yet
	ErrorTypeMissingStorage ErrorType = "missing_storage"
	// ErrorTypeConfig represents configuration and definition errors
	ErrorTypeConfig ErrorType = "config"
)

// Codes reported for conditions that do not originate in a store.
const (
	CodeEndpointMissing = "ENDPOINT_MISSING"
	CodeKeyMissing      = "KEY_MISSING"
	CodeNotConfirmed    = "NOT_CONFIRMED"
	CodeEncode          = "ENCODE"
	CodeSourceQuery     = "SOURCE_QUERY"
	CodeCanceled        = "CANCELED"
	CodeConnection      = "CONNECTION"
	CodeUnknown         = "UNKNOWN"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Code      string // store error code (SQLSTATE, Neo4j status) or one of the Code* constants
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Code != "" {
		prefix = fmt.Sprintf("[%s %s]", e.Type, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Base exposes the embedded BaseError to errors.As through wrapper types.
func (e *BaseError) Base() *BaseError {
	return e
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, code, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// NewFatal creates an error that aborts the run.
func NewFatal(code, message string, err error) *BaseError {
	return NewBaseError(ErrorTypeFatal, code, message, err)
}

// NewConflict creates an "already exists" error.
func NewConflict(code, message string, err error) *BaseError {
	return NewBaseError(ErrorTypeConflict, code, message, err)
}

// NewRowError creates an error confined to one source row.
func NewRowError(code, message string, err error) *BaseError {
	return NewBaseError(ErrorTypeRow, code, message, err)
}

// NewEncodeError creates an error for a value that has no safe literal form.
func NewEncodeError(message string) *BaseError {
	return NewBaseError(ErrorTypeEncode, CodeEncode, message, nil)
}

// NewMissingStorage creates an error for a label whose storage object does not exist.
func NewMissingStorage(code, message string, err error) *BaseError {
	return NewBaseError(ErrorTypeMissingStorage, code, message, err)
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the graph store cannot be reached
type ErrGraphConnectionFailed struct {
	*BaseError
	Target string
}

func NewGraphConnectionFailed(target, code string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewFatal(code, fmt.Sprintf("failed to connect to graph store: %s", target), err),
		Target:    target,
	}
}

// ErrGraphQueryFailed is returned when a graph-query fragment fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(errType ErrorType, code, query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(errType, code, "graph query failed", err),
		Query:     query,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, "", fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, "", fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type baser interface {
	Base() *BaseError
}

// AsBase finds the outermost BaseError in err's chain.
func AsBase(err error) (*BaseError, bool) {
	var b baser
	if errors.As(err, &b) {
		return b.Base(), true
	}
	return nil, false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if b, ok := AsBase(err); ok {
		return b.Type == errType
	}
	return false
}

// IsFatal reports whether err must abort the run. Unclassified errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if b, ok := AsBase(err); ok {
		return b.Type == ErrorTypeFatal || b.Type == ErrorTypeConfig
	}
	return true
}

// IsRowLocal reports whether err only affects the row that produced it.
func IsRowLocal(err error) bool {
	return IsErrorType(err, ErrorTypeRow) || IsErrorType(err, ErrorTypeEncode)
}

// IsConflict reports an idempotent "already exists" condition.
func IsConflict(err error) bool {
	return IsErrorType(err, ErrorTypeConflict)
}

// IsMissingStorage reports a label without a backing storage object.
func IsMissingStorage(err error) bool {
	return IsErrorType(err, ErrorTypeMissingStorage)
}

// CodeOf returns the error code carried by err, or CodeUnknown.
func CodeOf(err error) string {
	if b, ok := AsBase(err); ok && b.Code != "" {
		return b.Code
	}
	return CodeUnknown
}
