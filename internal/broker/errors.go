package broker

import (
	"errors"
	"fmt"
)

// Kind classifies a broker error for the RPC surface. Kinds cross the wire
// as the error field of a structured result; Go errors never do.
type Kind string

const (
	KindNotFound                     Kind = "not_found"
	KindInvalidTransition            Kind = "invalid_transition"
	KindInvalidState                 Kind = "invalid_state"
	KindInvalidArgument              Kind = "invalid_argument"
	KindDiffValidationFailed         Kind = "diff_validation_failed"
	KindDiffConflict                 Kind = "diff_conflict"
	KindCounterPatchValidationFailed Kind = "counter_patch_validation_failed"
	KindStaleCounterPatch            Kind = "stale_counter_patch"
	KindCounterPatchNotAllowed       Kind = "counter_patch_not_allowed"
	KindNoPendingCounterPatch        Kind = "no_pending_counter_patch"
	KindTurnViolation                Kind = "turn_violation"
	KindStaleClaimGeneration         Kind = "stale_claim_generation"
	KindDBError                      Kind = "db_error"
)

// Error is the broker's structured error. Detail is free text safe to show
// to the calling agent (for diff failures it carries the truncated stderr of
// the diff utility).
type Error struct {
	Kind   Kind
	Detail string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// newError builds a broker error with a formatted detail string.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// dbError wraps a store-layer failure. The transaction has already been
// rolled back by the time this is built.
func dbError(err error) *Error {
	return &Error{Kind: KindDBError, Detail: err.Error()}
}

// ErrKind extracts the broker kind from an error, or empty when err is not a
// broker error.
func ErrKind(err error) Kind {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Kind
	}

	return ""
}
