package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a stable, caller-visible error kind
type ErrorCode string

const (
	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Command validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidPhase    ErrorCode = "INVALID_PHASE"
	ErrCodeSessionBusy     ErrorCode = "SESSION_BUSY"
	ErrCodeMissingFeedback ErrorCode = "MISSING_FEEDBACK"

	// Model gateway errors
	ErrCodeModelUnavailable   ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeGenerationRejected ErrorCode = "GENERATION_REJECTED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// History invariant errors
	ErrCodeSequenceViolation ErrorCode = "SEQUENCE_VIOLATION"

	// A late result was discarded because the session was reset
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Command validation errors

func InvalidInput(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func InvalidPhase(command, phase string) *AppError {
	return New(ErrCodeInvalidPhase,
		fmt.Sprintf("%s is not allowed in phase %s", command, phase),
		http.StatusConflict).
		WithDetails("command", command).
		WithDetails("phase", phase)
}

func SessionBusy(command string) *AppError {
	return New(ErrCodeSessionBusy,
		fmt.Sprintf("%s rejected: another command is in flight", command),
		http.StatusConflict).
		WithDetails("command", command)
}

func MissingFeedback() *AppError {
	return New(ErrCodeMissingFeedback, "feedback is required to run a refinement cycle", http.StatusBadRequest)
}

// Model gateway errors

func ModelUnavailable(err error, message string) *AppError {
	return Wrap(err, ErrCodeModelUnavailable, message, http.StatusBadGateway)
}

func GenerationRejected(err error, message string) *AppError {
	return Wrap(err, ErrCodeGenerationRejected, message, http.StatusUnprocessableEntity)
}

func Timeout(err error, operation string) *AppError {
	return Wrap(err, ErrCodeTimeout,
		fmt.Sprintf("%s did not complete in time", operation),
		http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// History invariant errors

func SequenceViolation(expected, got int) *AppError {
	return New(ErrCodeSequenceViolation,
		fmt.Sprintf("artifact sequence %d does not follow %d", got, expected-1),
		http.StatusInternalServerError).
		WithDetails("expected", expected).
		WithDetails("got", got)
}

func Cancelled(command string) *AppError {
	return New(ErrCodeCancelled,
		fmt.Sprintf("%s result discarded: session was reset", command),
		http.StatusConflict).
		WithDetails("command", command)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// KindOf returns the error code carried by err, classifying bare context
// errors and falling back to ErrCodeInternal.
func KindOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := GetAppError(err); ok {
		return appErr.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return err != nil && KindOf(err) == code
}

// Retriable reports whether a caller may retry the failed command unchanged.
// Gateway-sourced failures are retriable; validation errors need corrected
// input and SEQUENCE_VIOLATION is never retried.
func Retriable(code ErrorCode) bool {
	switch code {
	case ErrCodeModelUnavailable, ErrCodeGenerationRejected, ErrCodeTimeout,
		ErrCodeSessionBusy:
		return true
	default:
		return false
	}
}

// StatusFor returns the HTTP status for an error, defaulting to 500
func StatusFor(err error) int {
	if appErr, ok := GetAppError(err); ok && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	switch KindOf(err) {
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCancelled:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
