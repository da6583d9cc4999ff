package deepwell

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category. It travels over the wire unchanged.
type Kind string

const (
	KindInternal             Kind = "INTERNAL"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindAuthenticationFailed Kind = "AUTHENTICATION_FAILED"
	KindInvalidSession       Kind = "INVALID_SESSION"
	KindUserNotFound         Kind = "USER_NOT_FOUND"
	KindNameExists           Kind = "USER_NAME_EXISTS"
	KindEmailExists          Kind = "USER_EMAIL_EXISTS"
	KindPasswordRejected     Kind = "PASSWORD_REJECTED"
)

// Error is the domain error returned by Server operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Internal wraps a failure that falls outside the declared taxonomy.
func Internal(cause error) *Error {
	return WrapError(KindInternal, "internal server error", cause)
}

func InvalidArgument(format string, args ...any) *Error {
	return NewError(KindInvalidArgument, fmt.Sprintf(format, args...))
}

var (
	ErrAuthenticationFailed = NewError(KindAuthenticationFailed, "invalid username, email, or password")
	ErrInvalidSession       = NewError(KindInvalidSession, "session is invalid or expired")
	ErrUserNotFound         = NewError(KindUserNotFound, "user not found")
	ErrNameExists           = NewError(KindNameExists, "user name already exists")
	ErrEmailExists          = NewError(KindEmailExists, "user email already exists")
	ErrPasswordRejected     = NewError(KindPasswordRejected, "password not allowed")
)

// AsError returns the domain error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of a domain error and KindInternal for anything else.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Normalize turns any error into a domain error. Nil stays nil.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return Internal(err)
}
