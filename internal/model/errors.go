package model

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and status mapping. The HTTP
// and MCP layers translate kinds into statuses; everything below them
// deals only in kinds.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindFetch      Kind = "fetch"
	KindExtract    Kind = "extract"
	KindAnnotator  Kind = "annotator"
	KindStorage    Kind = "storage"
	KindAuth       Kind = "auth"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error is a classified error that may wrap an underlying cause.
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

// E constructs a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the kind of an error, defaulting to internal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
