package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindInvalidState
	KindConflict
	KindSignatureInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindSignatureInvalid:
		return "provider_signature_invalid"
	default:
		return "internal"
	}
}

// Error is a structured application error surfaced to API callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return New(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func SignatureInvalid(format string, args ...interface{}) *Error {
	return New(KindSignatureInvalid, format, args...)
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code returned at the API boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindSignatureInvalid:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
