package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an application error
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindAccessDenied    Kind = "access_denied"
	KindUnauthorized    Kind = "unauthorized"
	KindInvalidArgument Kind = "invalid_argument"
	KindAlreadyApplied  Kind = "already_applied"
	KindConflict        Kind = "conflict"
	KindMessaging       Kind = "messaging_failure"
	KindInternal        Kind = "internal"
)

// Error is an application error carrying its kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAccessDenied    = &Error{Kind: KindAccessDenied}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrAlreadyApplied  = &Error{Kind: KindAlreadyApplied}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrMessaging       = &Error{Kind: KindMessaging}
	ErrInternal        = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(what string) *Error {
	return New(KindNotFound, "%s not found", what)
}

func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

func AlreadyApplied(format string, args ...any) *Error {
	return New(KindAlreadyApplied, format, args...)
}

// Internal wraps an unexpected lower-layer failure.
func Internal(err error, format string, args ...any) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindAlreadyApplied, KindConflict:
		return http.StatusConflict
	case KindMessaging:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Internal details are not exposed.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	msg := "Internal server error"
	var e *Error
	if status != http.StatusInternalServerError && errors.As(err, &e) {
		msg = e.Message
		if msg == "" {
			msg = string(e.Kind)
		}
	}
	c.JSON(status, gin.H{"error": msg})
}
