package domain

import "errors"

type ErrorKind string

const (
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindBadRequest   ErrorKind = "BAD_REQUEST"
	KindInternal     ErrorKind = "INTERNAL"
)

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrInternal     = &Error{Kind: KindInternal}
)

// Error is a business error whose Message is safe to show to operators.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func BadRequest(msg string) error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the operator-facing message of err.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	return fallback
}
