// Package apperr defines the domain error taxonomy and its HTTP mapping.
// Services return these errors; the handler layer is the only place they
// are converted into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind int

const (
	// KindNotFound means the requested entity does not exist.
	KindNotFound Kind = iota
	// KindValidation means the input violates a schema or business rule.
	KindValidation
	// KindData means data on disk is unreadable or malformed.
	KindData
	// KindModel means the training or scoring pipeline failed internally.
	KindModel
	// KindExternalService means an external dependency (LLM endpoint,
	// database connection) failed.
	KindExternalService
)

// Error is a domain error carrying a kind, a human-readable detail and
// optional extra info surfaced to clients.
type Error struct {
	Kind   Kind
	Detail string
	Info   string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindData:
		return http.StatusUnprocessableEntity
	case KindModel:
		return http.StatusInternalServerError
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// Data creates a data error.
func Data(format string, args ...interface{}) *Error {
	return &Error{Kind: KindData, Detail: fmt.Sprintf(format, args...)}
}

// Model creates a model error.
func Model(format string, args ...interface{}) *Error {
	return &Error{Kind: KindModel, Detail: fmt.Sprintf(format, args...)}
}

// ExternalService creates an external-service error.
func ExternalService(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExternalService, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(err error, kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, cause: err}
}

// WithInfo returns a copy of the error with extra client-visible info.
func (e *Error) WithInfo(info string) *Error {
	clone := *e
	clone.Info = info
	return &clone
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	if appErr, ok := As(err); ok {
		return appErr.Kind == kind
	}
	return false
}
