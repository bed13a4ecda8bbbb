package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business-rule failure so transports can map it to a status code.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindWrongState   Kind = "wrong_state"
	KindInvalidCode  Kind = "invalid_code"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error is the typed result returned by services for every expected failure.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input for validation failures.
	Field string
	Err   error

	sentinel bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels, so errors.Is(err, apperr.ErrNotFound) holds for any
// not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind
}

func sentinel(k Kind) *Error { return &Error{Kind: k, Message: string(k), sentinel: true} }

var (
	ErrValidation   = sentinel(KindValidation)
	ErrNotFound     = sentinel(KindNotFound)
	ErrForbidden    = sentinel(KindForbidden)
	ErrUnauthorized = sentinel(KindUnauthorized)
	ErrConflict     = sentinel(KindConflict)
	ErrWrongState   = sentinel(KindWrongState)
	ErrInvalidCode  = sentinel(KindInvalidCode)
	ErrUpstream     = sentinel(KindUpstream)
	ErrInternal     = sentinel(KindInternal)
)

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func WrongState(msg string) *Error { return &Error{Kind: KindWrongState, Message: msg} }

func InvalidCode(msg string) *Error { return &Error{Kind: KindInvalidCode, Message: msg} }

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to the HTTP status code its kind is reported with.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidCode:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict, KindWrongState:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
