// Package yerr defines the error kinds of the engine (spec §7) as a small
// closed set of sentinel-wrapped errors, so callers can distinguish them
// with errors.Is while still getting a human-readable message and, through
// Wrap, an unwrappable cause — the same style Node-tion uses
// golang.org/x/xerrors for, adopted here instead of bare fmt.Errorf for
// formatting messages through the API the rest of the pack already depends
// on.
package yerr

import "golang.org/x/xerrors"

// Kind is one of the six error kinds named in spec §7. IntegrationDependency
// is deliberately absent: per spec it is "NOT an error — buffered", so it
// is represented by a plain boolean/queue state in package block, never by
// an error value.
type Kind string

const (
	// MalformedUpdate is raised when the codec can't parse update bytes.
	// The store is left unchanged.
	MalformedUpdate Kind = "MalformedUpdate"
	// TypeMismatch is raised when a host reinterprets an existing root
	// name under a different collection kind.
	TypeMismatch Kind = "TypeMismatch"
	// ObserveOnPreliminary is raised when a host registers an observer on
	// a handle not yet attached to a doc.
	ObserveOnPreliminary Kind = "ObserveOnPreliminary"
	// TransactionReentry is raised when a host starts a new transaction
	// from inside a commit's observer dispatch.
	TransactionReentry Kind = "TransactionReentry"
	// OutOfBounds is raised when an index exceeds a collection's current
	// length; no partial mutation occurs.
	OutOfBounds Kind = "OutOfBounds"
)

// Error wraps a Kind with context and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target names the same Kind, so errors.Is(err, yerr.TypeMismatch-shaped)
// works via a zero-value *Error{Kind: k}.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// New builds an *Error of the given kind whose Message is the text
// xerrors.Errorf formats. Only that text is kept: no stack frame and no
// %w-wrapped cause survive (Wrap keeps a cause).
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: xerrors.Errorf(format, args...).Error()}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: xerrors.Errorf(format, args...).Error(), Cause: cause}
}

// Sentinel returns a comparable marker value for errors.Is(err, yerr.Sentinel(Kind)) checks.
func Sentinel(kind Kind) error { return &Error{Kind: kind} }
