package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes engine errors so callers can pick a recovery policy
// without matching on message text.
type ErrorKind string

const (
	// KindValidation covers malformed chunking parameters, dimension
	// mismatches, empty required text and row-id overwrites. Never
	// silently corrected.
	KindValidation ErrorKind = "validation"

	// KindEmbedding covers failed, timed-out or malformed responses from
	// the external embedding model. Retry or fallback is the caller's call.
	KindEmbedding ErrorKind = "embedding"

	// KindIndexIO covers unreadable or corrupt index/metadata files.
	// Recovered locally by resetting to an empty index.
	KindIndexIO ErrorKind = "index_io"

	// KindNotFound means a row id has no metadata entry. This violates the
	// core index/metadata invariant and is logged loudly.
	KindNotFound ErrorKind = "not_found"
)

// Error is a structured engine error with a kind and optional cause.
type Error struct {
	Kind    ErrorKind
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

// Is matches on kind so sentinel comparisons work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a structured engine error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates a structured engine error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsEmbedding reports whether err is an embedding-service error.
func IsEmbedding(err error) bool { return isKind(err, KindEmbedding) }

// IsIndexIO reports whether err is an index/metadata IO error.
func IsIndexIO(err error) bool { return isKind(err, KindIndexIO) }

// IsNotFound reports whether err is a missing-row-id error.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }
