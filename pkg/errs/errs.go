// Package errs defines the error-kind taxonomy every service method in this
// system propagates through: a closed set of categories, not an open tree of
// exception types, so the tool-surface boundary can flatten any failure into
// a short user-visible message without ever interpreting a stack trace.
package errs

import "fmt"

// Kind is a closed category of failure. It is the thing callers branch on —
// never the error's string form.
type Kind string

const (
	Validation         Kind = "validation"
	NotFound           Kind = "not_found"
	Cryptographic      Kind = "cryptographic"
	Expired            Kind = "expired"
	Revoked            Kind = "revoked"
	PolicyViolation    Kind = "policy_violation"
	StorageBusy        Kind = "storage_busy"
	StorageCorrupted   Kind = "storage_corrupted"
	Network            Kind = "network"
	SSRFBlocked        Kind = "ssrf_blocked"
	LedgerUnconfigured Kind = "ledger_unconfigured"
	LedgerFailure      Kind = "ledger_failure"
)

// Error is a kinded, user-facing error. Message is always a short, actionable
// sentence safe to return verbatim at the tool surface — never a stack trace
// or an internal detail.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a kinded error with a user-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kinded error with a formatted user-visible message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an internal cause to a kinded, user-visible error. The cause
// is available via errors.Unwrap for logging but is never included in the
// message surfaced to callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); !ok {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ToToolResponse flattens any error into the `{"error": message}` shape the
// tool surface returns — transport layers never interpret exceptions.
func ToToolResponse(err error) map[string]string {
	if err == nil {
		return nil
	}
	var e *Error
	if asError(err, &e) {
		return map[string]string{"error": e.Message}
	}
	return map[string]string{"error": err.Error()}
}
