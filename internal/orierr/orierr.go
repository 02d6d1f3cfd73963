// Package orierr defines the error taxonomy shared by every Ori package.
// Every failure that a caller might reasonably branch on is reported as an
// *Error carrying one of the Codes below, wrapped around its cause, so a
// call site can recover the code with errors.As regardless of how many
// layers of fmt.Errorf("...: %w", err) it passed through.
package orierr

import (
	"errors"
	"fmt"
)

// Code classifies a failure into the taxonomy the rest of the system
// branches on. Programmer errors (an unknown object tag, a negative length
// prefix during encode) are not part of this taxonomy — they panic.
type Code int

const (
	// NotFound means an object or path is absent.
	NotFound Code = iota
	// Exists means a create targeted a name already taken.
	Exists
	// WrongType means a typed fetch found an object of a different tag.
	WrongType
	// Malformed means a codec rejected the bytes it was given.
	Malformed
	// IntegrityError means a recomputed hash disagreed with the name it
	// was stored or fetched under.
	IntegrityError
	// NotEmpty means rmdir targeted a directory that still has entries.
	NotEmpty
	// AccessDenied means a write targeted a read-only virtual path.
	AccessDenied
	// InvalidArgument means the operation is not supported at all, not
	// merely failed (e.g. renaming a directory).
	InvalidArgument
	// Io wraps an underlying syscall failure; Cause preserves it.
	Io
	// Corrupted means verify/rebuildrefs found a reference-graph
	// inconsistency that isn't a simple hash mismatch.
	Corrupted
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "NotFound"
	case Exists:
		return "Exists"
	case WrongType:
		return "WrongType"
	case Malformed:
		return "Malformed"
	case IntegrityError:
		return "IntegrityError"
	case NotEmpty:
		return "NotEmpty"
	case AccessDenied:
		return "AccessDenied"
	case InvalidArgument:
		return "InvalidArgument"
	case Io:
		return "Io"
	case Corrupted:
		return "Corrupted"
	default:
		return "Unknown"
	}
}

// Error is the concrete error value every Ori package returns for an
// expected failure. Msg is a short human-readable description; Cause, if
// set, is the wrapped underlying error (a syscall error, a shorter Error).
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap builds an *Error around cause. If cause is itself an *Error, the new
// error's Cause chain still reaches it, so Is/As continue to work through
// repeated wrapping.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
