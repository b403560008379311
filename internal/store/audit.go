package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
)

const auditColumns = `id, review_id, event_type, actor, metadata,
	created_at_ms`

// scanEvent reads one audit row in auditColumns order.
func scanEvent(row rowScanner) (AuditEvent, error) {
	var (
		e           AuditEvent
		eventType   string
		metadata    sql.NullString
		createdAtMs int64
	)

	err := row.Scan(
		&e.ID, &e.ReviewID, &eventType, &e.Actor, &metadata,
		&createdAtMs,
	)
	if err != nil {
		return AuditEvent{}, err
	}

	e.EventType = review.EventType(eventType)
	e.Metadata = optString(metadata)
	e.CreatedAt = timeFromMs(createdAtMs)

	return e, nil
}

// AppendEvent appends one audit record. Rows are never updated or deleted
// afterwards.
func (s *SQLStore) AppendEvent(ctx context.Context,
	params AppendEventParams) (AuditEvent, error) {

	now := time.Now()
	query := `INSERT INTO audit_events
		(review_id, event_type, actor, metadata, created_at_ms)
	VALUES (?, ?, ?, ?, ?)`

	res, err := s.q.ExecContext(ctx, query,
		params.ReviewID, string(params.EventType), params.Actor,
		nullString(params.Metadata), msFromTime(now),
	)
	if err != nil {
		return AuditEvent{}, fmt.Errorf(
			"failed to append audit event: %w", err,
		)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AuditEvent{}, fmt.Errorf("last insert id: %w", err)
	}

	return AuditEvent{
		ID:        id,
		ReviewID:  params.ReviewID,
		EventType: params.EventType,
		Actor:     params.Actor,
		Metadata:  params.Metadata,
		CreatedAt: timeFromMs(msFromTime(now)),
	}, nil
}

// ListEvents returns audit events in append order, for one review or, with
// None, across the whole store.
func (s *SQLStore) ListEvents(ctx context.Context,
	reviewID fn.Option[string]) ([]AuditEvent, error) {

	query := `SELECT ` + auditColumns + ` FROM audit_events`
	var args []any

	reviewID.WhenSome(func(id string) {
		query += ` WHERE review_id = ?`
		args = append(args, id)
	})

	query += ` ORDER BY id ASC`

	return s.queryEvents(ctx, query, args...)
}

// ListEventsForProject returns all audit events whose review belongs to the
// given project, in append order. With None it matches ListEvents across
// everything.
func (s *SQLStore) ListEventsForProject(ctx context.Context,
	project fn.Option[string]) ([]AuditEvent, error) {

	query := `SELECT ` + auditColumns + ` FROM audit_events`
	var args []any

	project.WhenSome(func(p string) {
		query += ` WHERE review_id IN
			(SELECT id FROM reviews WHERE project = ?)`
		args = append(args, p)
	})

	query += ` ORDER BY id ASC`

	return s.queryEvents(ctx, query, args...)
}

// queryEvents runs an audit query and scans the result set.
func (s *SQLStore) queryEvents(ctx context.Context, query string,
	args ...any) ([]AuditEvent, error) {

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to scan audit event: %w", err,
			)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
