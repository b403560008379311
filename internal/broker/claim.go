package broker

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/diff"
	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// ClaimResult is the claim_review response. ClaimGeneration is the
// optimistic-concurrency token the reviewer must echo on submit_verdict.
type ClaimResult struct {
	ReviewID        string
	Status          review.Status
	ClaimGeneration int64
}

// ClaimReview moves a pending review to claimed for one reviewer. Unless the
// review was submitted with skip-validation, the stored diff is re-validated
// against the working tree first: the tree may have drifted since
// submission, and handing a reviewer a conflicted diff wastes a round.
//
// A re-validation failure auto-rejects: the review moves to
// changes_requested with verdict_reason carrying the conflict detail, the
// auto_rejected event is recorded, and the claimer gets a diff_conflict
// error. The proposer then revises as usual.
func (s *Service) ClaimReview(ctx context.Context, reviewID,
	reviewerID string) (ClaimResult, error) {

	if reviewerID == "" {
		return ClaimResult{}, newError(
			KindInvalidArgument, "reviewer_id must not be empty",
		)
	}

	var (
		result       ClaimResult
		autoRejected *Error
	)

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		autoRejected = nil

		r, err := tx.GetReview(ctx, reviewID)
		if errors.Is(err, store.ErrReviewNotFound) {
			return newError(
				KindNotFound, "review %s not found", reviewID,
			)
		}
		if err != nil {
			return err
		}

		err = review.ValidateTransition(
			r.Status, review.StatusClaimed,
		)
		if err != nil {
			return newError(KindInvalidTransition,
				"cannot claim review in %s", r.Status)
		}

		if !r.SkipDiffValidation && r.Diff.IsSome() {
			diffText := r.Diff.UnwrapOr("")
			err := s.validator.DryRunApply(ctx, diffText)

			var applyErr *diff.ApplyError
			if errors.As(err, &applyErr) {
				autoRejected = newError(
					KindDiffConflict, "%s",
					applyErr.Stderr,
				)

				return s.autoReject(ctx, tx, r, applyErr)
			}
			if err != nil {
				return newError(
					KindDiffConflict, "%v", err,
				)
			}
		}

		claimed, err := tx.ClaimPending(
			ctx, reviewID, reviewerID, now(),
		)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost a race between the read above and the
			// conditional update. The write mutex makes this
			// unreachable, but the row predicate is kept as the
			// second line of defense.
			return newError(KindInvalidTransition,
				"review %s is no longer pending", reviewID)
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  reviewID,
			EventType: review.EventClaimed,
			Actor:     reviewerID,
			Metadata: eventMeta(map[string]any{
				"reviewer_id":      reviewerID,
				"claim_generation": r.ClaimGeneration + 1,
			}),
		})
		if err != nil {
			return err
		}

		result = ClaimResult{
			ReviewID:        reviewID,
			Status:          review.StatusClaimed,
			ClaimGeneration: r.ClaimGeneration + 1,
		}

		return nil
	})

	// The auto-reject path commits its transition and then reports the
	// conflict to the claimer.
	if err == nil && autoRejected != nil {
		s.log.Info("Claim auto-rejected on diff conflict",
			"review_id", reviewID,
			"reviewer_id", reviewerID,
		)
		s.bus.Emit(reviewID)

		return ClaimResult{}, autoRejected
	}
	if err != nil {
		return ClaimResult{}, asBrokerErr(err)
	}

	s.log.Info("Review claimed",
		"review_id", reviewID,
		"reviewer_id", reviewerID,
		"claim_generation", result.ClaimGeneration,
	)
	s.bus.Emit(reviewID)

	return result, nil
}

// autoReject commits the changes_requested transition for a diff that no
// longer applies at claim time. Runs inside the claim transaction.
func (s *Service) autoReject(ctx context.Context, tx *store.SQLStore,
	r store.Review, applyErr *diff.ApplyError) error {

	r.Status = review.StatusChangesRequested
	r.VerdictReason = fn.Some(applyErr.Stderr)
	r.UpdatedAt = now()

	if err := tx.UpdateReview(ctx, r); err != nil {
		return err
	}

	_, err := tx.AppendEvent(ctx, store.AppendEventParams{
		ReviewID:  r.ID,
		EventType: review.EventAutoRejected,
		Actor:     "broker",
		Metadata: eventMeta(map[string]any{
			"reason": "diff_conflict",
		}),
	})

	return err
}
