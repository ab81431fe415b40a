package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the request engine.
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindNotFound                Kind = "NOT_FOUND"
	KindForbidden               Kind = "FORBIDDEN"
	KindAlreadyClaimed          Kind = "ALREADY_CLAIMED"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindMissingMechanicLocation Kind = "MISSING_MECHANIC_LOCATION"
	KindDependencyFailure       Kind = "DEPENDENCY_FAILURE"
)

// Error is a typed engine error. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation              = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "request not found"}
	ErrForbidden               = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrAlreadyClaimed          = &Error{Kind: KindAlreadyClaimed, Message: "request already claimed by another mechanic"}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrMissingMechanicLocation = &Error{Kind: KindMissingMechanicLocation, Message: "mechanic location is not set"}
	ErrDependencyFailure       = &Error{Kind: KindDependencyFailure, Message: "dependency failure"}
)

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Dependency wraps a storage or collaborator failure.
func Dependency(msg string, err error) error {
	return &Error{Kind: KindDependencyFailure, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindDependencyFailure for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependencyFailure
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrDependencyFailure.Message
}
