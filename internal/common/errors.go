package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeConfig       = "CONFIG_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError builds the run-terminating configuration error.
// A nil cause is recorded as ErrInvalidInput.
func NewConfigError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrInvalidInput
	}
	return NewAppError(CodeConfig, message, cause)
}

// ConfigErrorf is NewConfigError with formatting.
func ConfigErrorf(format string, args ...any) *AppError {
	return NewConfigError(fmt.Sprintf(format, args...), nil)
}

// IsConfigError reports whether err (or anything it wraps) is a configuration error.
func IsConfigError(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == CodeConfig
	}
	return false
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps an error onto the HTTP status the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsConfigError(err), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
