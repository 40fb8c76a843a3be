// Package errx provides application error kinds. The HTTP layer maps each
// kind to a status code; the core only ever deals in kinds.

package errx

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	// NotFound: no link exists for the code.
	NotFound
	// Conflict: a caller supplied custom code is already registered.
	Conflict
	// Duplicate: the store rejected an insert on its unique constraint.
	// Callers are expected to re-allocate and retry.
	Duplicate
	// Invalid: the caller's input failed validation.
	Invalid
	// Expired: the link exists but is past its expiration.
	Expired
	// Exhausted: code generation gave up after its attempt bound.
	Exhausted
	// Unavailable: the store (or another collaborator) could not be reached.
	Unavailable
	Internal
)

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Duplicate:
		return "Duplicate"
	case Invalid:
		return "Invalid"
	case Expired:
		return "Expired"
	case Exhausted:
		return "Exhausted"
	case Unavailable:
		return "Unavailable"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap re-tags err under op, keeping the kind it already carries.
func Wrap(op string, err error) error {
	return E(op, KindOf(err), err)
}
