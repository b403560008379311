package broker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// AddMessageParams carries the add_message inputs.
type AddMessageParams struct {
	ReviewID   string
	SenderRole string
	Body       string

	// Metadata is an opaque JSON string stored verbatim.
	Metadata string
}

// AddMessage appends a discussion entry. The discussion is strictly
// alternating: the last message's sender, by insertion rank, must differ
// from this one, across round boundaries too.
func (s *Service) AddMessage(ctx context.Context,
	params AddMessageParams) (store.Message, error) {

	role := review.Role(params.SenderRole)
	if !role.Valid() {
		return store.Message{}, newError(KindInvalidArgument,
			"unknown sender_role %q", params.SenderRole)
	}
	if params.Body == "" {
		return store.Message{}, newError(
			KindInvalidArgument, "body must not be empty",
		)
	}

	var result store.Message

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		r, err := tx.GetReview(ctx, params.ReviewID)
		if errors.Is(err, store.ErrReviewNotFound) {
			return newError(KindNotFound,
				"review %s not found", params.ReviewID)
		}
		if err != nil {
			return err
		}

		switch r.Status {
		case review.StatusClaimed, review.StatusInReview,
			review.StatusChangesRequested:

		default:
			return newError(KindInvalidState,
				"discussion is closed while review is %s",
				r.Status)
		}

		last, err := tx.LastMessage(ctx, r.ID)
		if err != nil {
			return err
		}
		turnErr := error(nil)
		last.WhenSome(func(m store.Message) {
			if m.SenderRole == role {
				turnErr = newError(KindTurnViolation,
					"last message was also from %s", role)
			}
		})
		if turnErr != nil {
			return turnErr
		}

		msg, err := tx.InsertMessage(ctx, store.InsertMessageParams{
			ReviewID:   r.ID,
			SenderRole: role,
			Round:      r.CurrentRound,
			Body:       params.Body,
			Metadata:   optFromString(params.Metadata),
		})
		if err != nil {
			return err
		}

		// Message inserts count as review activity.
		r.UpdatedAt = now()
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventMessageAdded,
			Actor:     string(role),
			Metadata: eventMeta(map[string]any{
				"message_id": msg.ID,
				"round":      msg.Round,
			}),
		})
		if err != nil {
			return err
		}

		result = msg

		return nil
	})
	if err != nil {
		return store.Message{}, asBrokerErr(err)
	}

	s.log.Debug("Message added",
		"review_id", params.ReviewID,
		"sender_role", role,
		"message_id", result.ID,
	)
	s.bus.Emit(params.ReviewID)

	return result, nil
}

// DiscussionMessage is a message with its metadata decoded for the wire.
// Malformed metadata comes back as a nil value with the warning flag set,
// never as an error.
type DiscussionMessage struct {
	ID                int64
	SenderRole        review.Role
	Round             int64
	Body              string
	Metadata          any
	MalformedMetadata bool
	CreatedAt         string
}

// GetDiscussion returns a review's messages in insertion order, optionally
// narrowed to one round.
func (s *Service) GetDiscussion(ctx context.Context, reviewID string,
	round fn.Option[int64]) ([]DiscussionMessage, error) {

	if _, err := s.getReview(ctx, reviewID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, reviewID, round)
	if err != nil {
		return nil, dbError(err)
	}

	out := make([]DiscussionMessage, 0, len(msgs))
	for _, m := range msgs {
		d := DiscussionMessage{
			ID:         m.ID,
			SenderRole: m.SenderRole,
			Round:      m.Round,
			Body:       m.Body,
			CreatedAt:  FormatTime(m.CreatedAt),
		}

		m.Metadata.WhenSome(func(raw string) {
			var v any
			if json.Unmarshal([]byte(raw), &v) != nil {
				d.MalformedMetadata = true
				s.log.Warn("Malformed message metadata",
					"review_id", reviewID,
					"message_id", m.ID,
				)

				return
			}
			d.Metadata = v
		})

		out = append(out, d)
	}

	return out, nil
}
