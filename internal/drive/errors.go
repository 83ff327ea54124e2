package drive

import (
	"errors"
	"fmt"
)

// ErrorKind classifies recoverable command failures.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
)

var (
	// ErrValidation, ErrNotFound and ErrConflict match any *Error of the
	// corresponding kind through errors.Is.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("entity not found")
	ErrConflict   = errors.New("lifecycle conflict")

	// ErrInvariant reports internal tree corruption. It is never caused by bad
	// input and is not meant to be handled by retrying.
	ErrInvariant = errors.New("store invariant violated")
	// ErrHalted is returned by every command after an invariant violation.
	ErrHalted = errors.New("store halted after invariant violation")
)

// Error is the tagged failure returned by store commands.
type Error struct {
	Kind    ErrorKind
	Op      string
	ID      string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) and friends match on kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

func validationError(op, id, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, ID: id, Message: msg}
}

func notFoundError(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Message: "entity not found"}
}

func conflictError(op, id, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, ID: id, Message: msg}
}

// KindOf returns the kind of a tagged error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
