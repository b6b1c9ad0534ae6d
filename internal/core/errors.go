// Package core defines the error kinds every control plane component reports.
// Handlers translate a Kind into an HTTP status; the kind strings are part of
// the API contract and must not change.
package core

import (
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound              Kind = "NotFound"
	NotInstalled          Kind = "NotInstalled"
	AlreadyExists         Kind = "AlreadyExists"
	Conflict              Kind = "Conflict"
	Busy                  Kind = "Busy"
	InUse                 Kind = "InUse"
	InvalidInput          Kind = "InvalidInput"
	InvalidSchedule       Kind = "InvalidSchedule"
	InsufficientResources Kind = "InsufficientResources"
	ValidationFailed      Kind = "ValidationFailed"
	RateLimited           Kind = "RateLimited"
	TooEarly              Kind = "TooEarly"
	Timeout               Kind = "Timeout"
	CryptoError           Kind = "CryptoError"
	ContainerRunning      Kind = "ContainerRunning"
	Unavailable           Kind = "Unavailable"
	InternalError         Kind = "InternalError"
)

// Error carries a stable Kind and a human-readable message. Err, when set,
// is the underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to err.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// InternalError when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
