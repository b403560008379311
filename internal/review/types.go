// Package review defines the broker's pure domain model: the review state
// machine, verdict and category enums, and priority inference. Nothing in
// this package touches the store.
package review

// Status represents the lifecycle state of a review.
type Status string

const (
	// StatusPending means the review is waiting to be claimed.
	StatusPending Status = "pending"

	// StatusClaimed means a reviewer holds the review.
	StatusClaimed Status = "claimed"

	// StatusInReview means the reviewer has engaged (first comment).
	StatusInReview Status = "in_review"

	// StatusApproved means the reviewer approved the proposal.
	StatusApproved Status = "approved"

	// StatusChangesRequested means the reviewer (or the auto-reject path)
	// asked for a revision.
	StatusChangesRequested Status = "changes_requested"

	// StatusClosed is the terminal state.
	StatusClosed Status = "closed"
)

// Valid returns true if s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusInReview, StatusApproved,
		StatusChangesRequested, StatusClosed:

		return true
	}

	return false
}

// IsTerminal returns true for the terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// Role identifies which side of the protocol an actor is on.
type Role string

const (
	RoleProposer Role = "proposer"
	RoleReviewer Role = "reviewer"
)

// Valid returns true if r is a known role.
func (r Role) Valid() bool {
	return r == RoleProposer || r == RoleReviewer
}

// Verdict is the outcome a reviewer attaches to a claimed review.
type Verdict string

const (
	VerdictApproved         Verdict = "approved"
	VerdictChangesRequested Verdict = "changes_requested"

	// VerdictComment carries notes (and optionally a counter-patch)
	// without releasing the claim.
	VerdictComment Verdict = "comment"
)

// Valid returns true if v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictChangesRequested, VerdictComment:
		return true
	}

	return false
}

// Category drives reviewer filtering and routing.
type Category string

const (
	CategoryPlanReview   Category = "plan_review"
	CategoryCodeChange   Category = "code_change"
	CategoryVerification Category = "verification"
	CategoryHandoff      Category = "handoff"
)

// Valid returns true if c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPlanReview, CategoryCodeChange, CategoryVerification,
		CategoryHandoff:

		return true
	}

	return false
}

// Priority is derived once at creation and frozen for the review's lifetime.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// SortRank returns the ordering weight used by list queries: critical first,
// then normal, then low. Unknown values sort with normal.
func (p Priority) SortRank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// CounterPatchStatus is the lifecycle of a reviewer-supplied alternative
// diff.
type CounterPatchStatus string

const (
	CounterPatchPending  CounterPatchStatus = "pending"
	CounterPatchAccepted CounterPatchStatus = "accepted"
	CounterPatchRejected CounterPatchStatus = "rejected"
)

// EventType enumerates the audit event kinds. The audit log is append-only
// and is the sole source for stats and timelines.
type EventType string

const (
	EventReviewCreated        EventType = "review_created"
	EventRevisionCreated      EventType = "revision_created"
	EventClaimed              EventType = "claimed"
	EventAutoRejected         EventType = "auto_rejected"
	EventVerdictSubmitted     EventType = "verdict_submitted"
	EventClosed               EventType = "closed"
	EventCounterPatchSubmit   EventType = "counter_patch_submitted"
	EventCounterPatchAccepted EventType = "counter_patch_accepted"
	EventCounterPatchRejected EventType = "counter_patch_rejected"
	EventMessageAdded         EventType = "message_added"
)
