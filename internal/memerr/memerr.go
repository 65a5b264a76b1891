// Package memerr defines the error taxonomy shared by the memory engine and
// its transports.
//
// Every error exposed by the engine carries a stable Kind so callers can
// distinguish "fix your input" (KindValidation) from "retry later"
// (KindLockTimeout) from "the system is unhealthy" (KindRepository,
// KindStorage). Messages and Details never contain raw subprocess output or
// absolute filesystem paths — that detail goes to the audit log only.
package memerr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category. Values are stable and appear verbatim
// in transport responses as "error_type".
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindSessionNotFound Kind = "SessionNotFoundError"
	KindBranchNotFound  Kind = "BranchNotFoundError"
	KindConflict        Kind = "ConflictError"
	KindLockTimeout     Kind = "LockTimeoutError"
	KindRepository      Kind = "RepositoryError"
	KindStorage         Kind = "StorageError"
)

// Error is the concrete error type for all engine failures.
type Error struct {
	Kind    Kind
	Op      string         // operation or field the error relates to
	Message string         // human-readable, safe to surface
	Details map[string]any // safe structured context (field names, branch lists)
	Err     error          // underlying cause, not surfaced by transports
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain. Unrecognized errors report
// KindStorage, the conservative "system unhealthy" category.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// DetailsOf returns the structured details from an error chain, or nil.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// Validation reports malformed input. field names the offending parameter.
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      field,
		Message: message,
		Details: map[string]any{"field": field},
	}
}

// SessionNotFound reports a reference to a session that was never initialized.
func SessionNotFound(sessionID string) *Error {
	return &Error{
		Kind:    KindSessionNotFound,
		Message: fmt.Sprintf("session not found: %s", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

// BranchNotFound reports a reference to a branch that does not exist.
// available lists the branches that do, to help the caller recover.
func BranchNotFound(branch string, available []string) *Error {
	details := map[string]any{"branch": branch}
	if len(available) > 0 {
		details["available_branches"] = available
	}
	return &Error{
		Kind:    KindBranchNotFound,
		Message: fmt.Sprintf("branch not found: %s", branch),
		Details: details,
	}
}

// Conflict reports an operation that cannot proceed against current state,
// such as re-creating a branch with a different purpose.
func Conflict(message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: message, Details: details}
}

// LockTimeout reports a failed lock acquisition within the bounded wait.
func LockTimeout(sessionID string) *Error {
	return &Error{
		Kind:    KindLockTimeout,
		Message: "could not acquire session lock, retry later",
		Details: map[string]any{"session_id": sessionID},
	}
}

// Repository reports a failed version-control operation. op is the adapter
// operation name (e.g. "commit", "merge"); cause keeps the raw failure for
// the audit trail without surfacing it.
func Repository(op string, cause error) *Error {
	return &Error{
		Kind:    KindRepository,
		Op:      op,
		Message: "version-control operation failed",
		Err:     cause,
	}
}

// Storage reports a filesystem failure. op names the storage operation.
func Storage(op string, cause error) *Error {
	return &Error{
		Kind:    KindStorage,
		Op:      op,
		Message: "storage operation failed",
		Err:     cause,
	}
}
