// Package errors provides the application error type used by WebCAF handlers
// and services.
//
// Authorization and workflow-guard failures are Forbidden errors and end the
// request. Validation failures carry FieldErrors so the form can be rendered
// again with messages next to the offending inputs.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrBadRequest    = errors.New("bad request")
	ErrConflict      = errors.New("conflict")
	ErrNoProfile     = errors.New("no active profile")
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "ASSESSMENT_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context for the error page.
	Params map[string]interface{} `json:"params,omitempty"`

	// FieldErrors carries field-level validation details for form re-rendering.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors to the AppError.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// FieldMessage returns the first message recorded for field, or "".
func (e *AppError) FieldMessage(field string) string {
	if e == nil {
		return ""
	}
	for _, fe := range e.FieldErrors {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// Common error constructors.

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// BadRequest creates a 400 error.
func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// Forbidden creates a 403 error. Permission failures always use it.
func Forbidden(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusForbidden, Err: ErrForbidden}
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// Internal creates a 500 error.
func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// Validation creates a form validation error. The status is 200 because the
// form page is rendered again, not replaced by an error page.
func Validation(fieldErrors ...FieldError) *AppError {
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return &AppError{
		Code:        CodeValidationFailed,
		Message:     strings.Join(msgs, "; "),
		HTTPStatus:  http.StatusOK,
		FieldErrors: fieldErrors,
	}
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsValidation reports whether err carries form field errors.
func IsValidation(err error) (*AppError, bool) {
	appErr, ok := IsAppError(err)
	if !ok || len(appErr.FieldErrors) == 0 {
		return nil, false
	}
	return appErr, true
}

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool {
	if appErr, ok := IsAppError(err); ok && appErr.HTTPStatus == http.StatusForbidden {
		return true
	}
	return errors.Is(err, ErrForbidden)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	if appErr, ok := IsAppError(err); ok && appErr.HTTPStatus == http.StatusNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}
