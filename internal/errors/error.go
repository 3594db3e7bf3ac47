package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryStorage    Category = "storage"
	CategoryValidation Category = "validation"
	CategoryProxy      Category = "proxy"
	CategoryAPI        Category = "api"
	CategoryBackup     Category = "backup"
	CategoryCLI        Category = "cli"
)

// Error is a structured error with a code, category and HTTP status.
type Error struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string `json:"code"`

	// Category is the error type (storage, validation, etc.).
	Category Category `json:"category,omitempty"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Detail is a longer explanation of the error.
	Detail string `json:"detail,omitempty"`

	// Suggestion is a hint on how to fix the error.
	Suggestion string `json:"-"`

	// Status is the HTTP status reported to API clients.
	Status int `json:"-"`

	// Wrapped is the underlying error, if any.
	Wrapped error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// HTTPStatus returns the status to report, 500 when unset.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithStatus overrides the HTTP status of the error.
func (e *Error) WithStatus(code int) *Error {
	e.Status = code
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		Status:   template.Status,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in an Error with the given code. An err that already
// is (or wraps) an *Error is returned as that *Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}
