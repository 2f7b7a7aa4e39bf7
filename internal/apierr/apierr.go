// Package apierr defines the closed set of error kinds that cross component
// and request boundaries, replacing the prototype-style exception hierarchy
// called out in spec §9 with tagged variants plus a free-form message.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is a closed set of error categories. New kinds require a deliberate
// addition here, not ad-hoc string sentinels in callers.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindAuth       Kind = "AUTH"
	KindForbidden  Kind = "FORBIDDEN"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindDuplicate  Kind = "DUPLICATE_IDEMPOTENT"
	KindInternal   Kind = "INTERNAL"
)

// Error is the tagged variant carried across component boundaries. Transport
// layers map it 1:1 to an HTTP status and the stable message text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// StatusCode maps a Kind to the HTTP status spec §7 assigns it.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDuplicate:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(msg string) *Error   { return New(KindNotFound, msg) }
func Conflict(msg string) *Error   { return New(KindConflict, msg) }
func Validation(msg string) *Error { return New(KindValidation, msg) }
func Internal(cause error) *Error  { return Wrap(KindInternal, "internal server error", cause) }
