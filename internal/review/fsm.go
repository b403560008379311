package review

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a requested state change is not in
// the transition table.
var ErrInvalidTransition = errors.New("invalid transition")

// transitions is the closed transition table. Any pair not listed here is
// rejected. The claimed → pending edge does not exist: a failed claim moves
// to changes_requested via the auto-reject rule instead.
var transitions = map[Status][]Status{
	StatusPending: {
		StatusClaimed, StatusClosed,
	},
	StatusClaimed: {
		StatusInReview, StatusApproved, StatusChangesRequested,
		StatusPending, StatusClosed,
	},
	StatusInReview: {
		StatusApproved, StatusChangesRequested, StatusClosed,
	},
	StatusApproved: {
		StatusClosed,
	},
	StatusChangesRequested: {
		StatusPending, StatusClosed,
	},
	StatusClosed: nil,
}

// ValidateTransition checks whether moving from current to target is legal.
// It is a pure function and never touches the store.
func ValidateTransition(current, target Status) error {
	if !current.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition,
			current)
	}

	for _, allowed := range transitions[current] {
		if allowed == target {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current,
		target)
}

// CanTransition reports whether the given transition is legal.
func CanTransition(current, target Status) bool {
	return ValidateTransition(current, target) == nil
}
