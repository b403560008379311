// Package store is the typed persistence layer over the broker's sqlite
// database. All entities are value types holding a one-way foreign key to
// their review; there are no object graphs.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
)

// Review mirrors one row of the reviews table.
type Review struct {
	ID                 string
	Status             review.Status
	Intent             string
	Description        fn.Option[string]
	Diff               fn.Option[string]
	AffectedFiles      []string
	SkipDiffValidation bool

	// Identity tuple of the proposing agent.
	AgentType string
	AgentRole string
	Phase     string
	Plan      fn.Option[string]
	Task      fn.Option[string]
	Project   string

	Category fn.Option[review.Category]

	// Priority is frozen at creation and survives revisions.
	Priority review.Priority

	CurrentRound    int64
	ClaimedBy       fn.Option[string]
	ClaimGeneration int64
	VerdictReason   fn.Option[string]

	CounterPatch              fn.Option[string]
	CounterPatchAffectedFiles fn.Option[[]string]
	CounterPatchStatus        fn.Option[review.CounterPatchStatus]

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one discussion entry. ID doubles as the insertion-order rank:
// it is assigned by the store and strictly increases per insert, independent
// of wall-clock resolution.
type Message struct {
	ID         int64
	ReviewID   string
	SenderRole review.Role
	Round      int64
	Body       string
	Metadata   fn.Option[string]
	CreatedAt  time.Time
}

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	ID        int64
	ReviewID  string
	EventType review.EventType
	Actor     string
	Metadata  fn.Option[string]
	CreatedAt time.Time
}

// ReviewFilter narrows list queries. Unset options match everything.
type ReviewFilter struct {
	Status   fn.Option[review.Status]
	Category fn.Option[review.Category]
	Project  fn.Option[string]
}

// InsertMessageParams holds the caller-supplied fields of a new message.
type InsertMessageParams struct {
	ReviewID   string
	SenderRole review.Role
	Round      int64
	Body       string
	Metadata   fn.Option[string]
}

// AppendEventParams holds the caller-supplied fields of a new audit event.
type AppendEventParams struct {
	ReviewID  string
	EventType review.EventType
	Actor     string
	Metadata  fn.Option[string]
}

// nullString converts an optional string to its sql representation.
func nullString(o fn.Option[string]) sql.NullString {
	var ns sql.NullString
	o.WhenSome(func(s string) {
		ns = sql.NullString{String: s, Valid: true}
	})

	return ns
}

// optString converts a nullable column back to an option. NULL and the
// empty string both map to None so round-trips stay stable.
func optString(ns sql.NullString) fn.Option[string] {
	if !ns.Valid || ns.String == "" {
		return fn.None[string]()
	}

	return fn.Some(ns.String)
}

// encodeFiles serializes an affected-files list as a JSON array.
func encodeFiles(files []string) string {
	if files == nil {
		files = []string{}
	}

	// Marshal of a string slice cannot fail.
	data, _ := json.Marshal(files)

	return string(data)
}

// decodeFiles deserializes a JSON-encoded affected-files list.
func decodeFiles(data string) []string {
	if data == "" {
		return []string{}
	}

	var files []string
	if err := json.Unmarshal([]byte(data), &files); err != nil {
		return []string{}
	}
	if files == nil {
		files = []string{}
	}

	return files
}

// msFromTime converts a timestamp to unix milliseconds, the store's native
// resolution.
func msFromTime(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// timeFromMs converts stored unix milliseconds back to a UTC timestamp.
func timeFromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
