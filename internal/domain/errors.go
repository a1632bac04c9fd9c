package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of failure kinds surfaced at public
// boundaries. Backend-specific codes never cross this boundary.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNotFound           ErrorKind = "not_found"
	KindStorageFailure     ErrorKind = "storage_failure"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindConflictUnresolved ErrorKind = "conflict_unresolved"
	KindInvalidEdge        ErrorKind = "invalid_edge"
	KindUnsupportedFormat  ErrorKind = "unsupported_format"
)

// ErrUnsupported marks an optional capability the backend does not provide.
// Callers downgrade gracefully unless the capability was explicitly required.
var ErrUnsupported = errors.New("capability not supported by backend")

// Error is a user-visible failure: a kind, a short reason, and when it
// happened.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

// Errorf builds a user-visible failure of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), At: time.Now().UTC()}
}

// WrapError attaches a kind and reason to an underlying error while keeping
// the chain intact for errors.Is / errors.As.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), At: time.Now().UTC(), err: err}
}

// KindOf extracts the error kind from anywhere in the chain; ok is false for
// errors that never crossed a public boundary.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
