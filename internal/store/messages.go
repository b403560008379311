package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
)

const messageColumns = `id, review_id, sender_role, round, body, metadata,
	created_at_ms`

// scanMessage reads one message row in messageColumns order.
func scanMessage(row rowScanner) (Message, error) {
	var (
		m           Message
		senderRole  string
		metadata    sql.NullString
		createdAtMs int64
	)

	err := row.Scan(
		&m.ID, &m.ReviewID, &senderRole, &m.Round, &m.Body, &metadata,
		&createdAtMs,
	)
	if err != nil {
		return Message{}, err
	}

	m.SenderRole = review.Role(senderRole)
	m.Metadata = optString(metadata)
	m.CreatedAt = timeFromMs(createdAtMs)

	return m, nil
}

// InsertMessage appends a discussion entry and returns it with its assigned
// insertion-order rank.
func (s *SQLStore) InsertMessage(ctx context.Context,
	params InsertMessageParams) (Message, error) {

	now := time.Now()
	query := `INSERT INTO messages
		(review_id, sender_role, round, body, metadata, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)`

	res, err := s.q.ExecContext(ctx, query,
		params.ReviewID, string(params.SenderRole), params.Round,
		params.Body, nullString(params.Metadata), msFromTime(now),
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w",
			err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("last insert id: %w", err)
	}

	return Message{
		ID:         id,
		ReviewID:   params.ReviewID,
		SenderRole: params.SenderRole,
		Round:      params.Round,
		Body:       params.Body,
		Metadata:   params.Metadata,
		CreatedAt:  timeFromMs(msFromTime(now)),
	}, nil
}

// LastMessage returns the most recent message of a review by insertion
// order, or None when the discussion is empty.
func (s *SQLStore) LastMessage(ctx context.Context,
	reviewID string) (fn.Option[Message], error) {

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE review_id = ? ORDER BY id DESC LIMIT 1`

	m, err := scanMessage(s.q.QueryRowContext(ctx, query, reviewID))
	if errors.Is(err, sql.ErrNoRows) {
		return fn.None[Message](), nil
	}
	if err != nil {
		return fn.None[Message](), fmt.Errorf(
			"failed to get last message: %w", err,
		)
	}

	return fn.Some(m), nil
}

// ListMessages returns a review's messages in insertion order, optionally
// filtered to one round.
func (s *SQLStore) ListMessages(ctx context.Context, reviewID string,
	round fn.Option[int64]) ([]Message, error) {

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE review_id = ?`
	args := []any{reviewID}

	round.WhenSome(func(r int64) {
		query += ` AND round = ?`
		args = append(args, r)
	})

	query += ` ORDER BY id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w",
				err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// CountMessages returns the number of messages on a review.
func (s *SQLStore) CountMessages(ctx context.Context,
	reviewID string) (int64, error) {

	var count int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE review_id = ?`,
		reviewID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}
