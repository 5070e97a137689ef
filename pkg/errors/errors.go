package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Business logic errors
	ErrCodeInsufficientLots ErrorCode = "INSUFFICIENT_LOTS"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"

	// Concurrency errors
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"

	// System errors
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// LedgerError represents a standardized error
type LedgerError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	cause      error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.cause
}

// New creates a new LedgerError
func New(code ErrorCode, message string) *LedgerError {
	return &LedgerError{
		Code:       code,
		Message:    message,
		StatusCode: getHTTPStatusCode(code),
	}
}

// Wrap wraps an existing error with a LedgerError
func Wrap(err error, code ErrorCode, message string) *LedgerError {
	e := New(code, message)
	e.cause = err
	return e
}

// AddDetail adds a detail to the error
func (e *LedgerError) AddDetail(key string, value interface{}) *LedgerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Code extracts the ErrorCode from err, or ErrCodeInternal if err is not a
// LedgerError.
func Code(err error) ErrorCode {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}

// getHTTPStatusCode maps error codes to HTTP status codes
func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidInput, ErrCodeMissingField:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInsufficientLots:
		return http.StatusUnprocessableEntity
	case ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case ErrCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors

func ValidationError(message string) *LedgerError {
	return New(ErrCodeValidation, message)
}

// InsufficientLots is raised when a sell requests more shares than the key
// holds. The message states requested vs. available.
func InsufficientLots(requested, available int64) *LedgerError {
	return New(ErrCodeInsufficientLots,
		fmt.Sprintf("insufficient lots: requested %d shares, %d available", requested, available)).
		AddDetail("requested", requested).
		AddDetail("available", available)
}

func NotFound(resource string) *LedgerError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ConcurrencyConflict marks a lock or serialization failure. The whole
// operation is safe to retry.
func ConcurrencyConflict(err error) *LedgerError {
	return Wrap(err, ErrCodeConcurrencyConflict, "concurrent modification detected, retry the operation")
}

func Persistence(err error, message string) *LedgerError {
	return Wrap(err, ErrCodePersistence, message)
}

func Internal(message string) *LedgerError {
	return New(ErrCodeInternal, message)
}
