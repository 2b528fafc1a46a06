/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package errs defines the error kinds used throughout the analyzer, each
// carrying a stack trace captured at construction time so the top-level
// exception callback can log a full trace without re-walking the call
// stack itself.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which error family a given Error belongs to.
type Kind int

const (
	// HostError means the host adapter reported failure from the underlying
	// runtime interface.
	HostError Kind = iota
	// HostCallbackError means a host call made through the reflection bridge
	// raised an exception of its own.
	HostCallbackError
	// InvalidIndex means a constant-pool lookup was out of range.
	InvalidIndex
	// MalformedConstantPool means a tag or cross-reference violated the
	// constant-pool invariants.
	MalformedConstantPool
	// InvalidDescriptor means the descriptor parser found a malformed type
	// or method signature.
	InvalidDescriptor
	// UnsupportedStackOpcode means the stack-effect oracle was asked about
	// an opcode with no stack-effect rule.
	UnsupportedStackOpcode
	// InvalidArgument is a defensive check on internal arguments.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case HostError:
		return "HostError"
	case HostCallbackError:
		return "HostCallbackError"
	case InvalidIndex:
		return "InvalidIndex"
	case MalformedConstantPool:
		return "MalformedConstantPool"
	case InvalidDescriptor:
		return "InvalidDescriptor"
	case UnsupportedStackOpcode:
		return "UnsupportedStackOpcode"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "UnknownErrorKind"
	}
}

// Error is the single error type used across the analyzer. It wraps a
// pkg/errors-produced cause so %+v formatting prints a stack trace.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Unwrap lets errors.Is/errors.As see through to the captured cause.
func (e *Error) Unwrap() error { return e.cause }

// Format forwards to the captured stack trace when present, so that
// logging an *Error with "%+v" prints file:line frames.
func (e *Error) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		_, _ = fmt.Fprintf(s, "%s: %s", e.Kind, e.msg)
		if e.cause != nil {
			_, _ = fmt.Fprintf(s, "\n%+v", e.cause)
		}
	default:
		_, _ = fmt.Fprint(s, e.Error())
	}
}

// New builds an Error of the given kind, capturing a fresh stack trace.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, msg: msg, cause: errors.New(msg)}
}

// Wrap builds an Error of the given kind around an existing error, the way
// a HostError wraps the host's own reported failure.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, msg: msg, cause: errors.Wrap(cause, msg)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
