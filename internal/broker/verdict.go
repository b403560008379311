package broker

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// SubmitVerdictParams carries the submit_verdict inputs.
type SubmitVerdictParams struct {
	ReviewID string
	Verdict  string

	// Notes is required for every verdict except approved.
	Notes string

	// CounterPatch optionally attaches an alternative diff. Only legal
	// for changes_requested and comment verdicts.
	CounterPatch string

	// ClaimGeneration must echo the token returned by claim_review.
	ClaimGeneration int64
}

// VerdictResult is the submit_verdict response.
type VerdictResult struct {
	ReviewID           string
	Status             review.Status
	CounterPatchStatus fn.Option[review.CounterPatchStatus]
}

// SubmitVerdict records the reviewer's decision. Approval and
// changes_requested move the state machine; a comment leaves the claim in
// place, bumping claimed to in_review on the first one so observers can tell
// an engaged reviewer from an idle claim.
func (s *Service) SubmitVerdict(ctx context.Context,
	params SubmitVerdictParams) (VerdictResult, error) {

	verdict := review.Verdict(params.Verdict)
	if !verdict.Valid() {
		return VerdictResult{}, newError(
			KindInvalidArgument, "unknown verdict %q",
			params.Verdict,
		)
	}
	if verdict != review.VerdictApproved && params.Notes == "" {
		return VerdictResult{}, newError(KindInvalidArgument,
			"notes are required for a %s verdict", verdict)
	}
	if params.CounterPatch != "" && verdict == review.VerdictApproved {
		return VerdictResult{}, newError(KindCounterPatchNotAllowed,
			"a counter-patch cannot accompany approval")
	}

	var result VerdictResult

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

		if r.Status != review.StatusClaimed &&
			r.Status != review.StatusInReview {

			return newError(KindInvalidTransition,
				"verdict requires a claimed or in_review "+
					"review, got %s", r.Status)
		}
		if params.ClaimGeneration != r.ClaimGeneration {
			return newError(KindStaleClaimGeneration,
				"claim generation %d does not match "+
					"current %d", params.ClaimGeneration,
				r.ClaimGeneration)
		}

		hasCounterPatch := params.CounterPatch != ""
		if hasCounterPatch {
			files, err := s.validateSubmission(
				ctx, params.CounterPatch,
				r.SkipDiffValidation,
				KindCounterPatchValidationFailed,
			)
			if err != nil {
				return err
			}

			r.CounterPatch = fn.Some(params.CounterPatch)
			r.CounterPatchAffectedFiles = fn.Some(files)
			r.CounterPatchStatus = fn.Some(
				review.CounterPatchPending,
			)
		}

		switch verdict {
		case review.VerdictApproved:
			r.Status = review.StatusApproved

		case review.VerdictChangesRequested:
			r.Status = review.StatusChangesRequested

		case review.VerdictComment:
			if r.Status == review.StatusClaimed {
				r.Status = review.StatusInReview
			}
		}

		if params.Notes != "" {
			r.VerdictReason = fn.Some(params.Notes)
		}
		r.UpdatedAt = now()

		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		actor := r.ClaimedBy.UnwrapOr(string(review.RoleReviewer))
		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventVerdictSubmitted,
			Actor:     actor,
			Metadata: eventMeta(map[string]any{
				"verdict":           string(verdict),
				"has_counter_patch": hasCounterPatch,
			}),
		})
		if err != nil {
			return err
		}

		if hasCounterPatch {
			evt := store.AppendEventParams{
				ReviewID:  r.ID,
				EventType: review.EventCounterPatchSubmit,
				Actor:     actor,
			}
			if _, err := tx.AppendEvent(ctx, evt); err != nil {
				return err
			}
		}

		result = VerdictResult{
			ReviewID:           r.ID,
			Status:             r.Status,
			CounterPatchStatus: r.CounterPatchStatus,
		}

		return nil
	})
	if err != nil {
		return VerdictResult{}, asBrokerErr(err)
	}

	s.log.Info("Verdict submitted",
		"review_id", params.ReviewID,
		"verdict", verdict,
		"has_counter_patch", params.CounterPatch != "",
	)
	s.bus.Emit(params.ReviewID)

	return result, nil
}

// AcceptCounterPatch swaps the reviewer's alternative diff in as the
// proposal. The stored counter-patch is re-validated against the working
// tree at this moment; if the tree drifted since submission the call fails
// with stale_counter_patch and the row stays untouched.
func (s *Service) AcceptCounterPatch(ctx context.Context,
	reviewID string) (store.Review, error) {

	var result store.Review

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		r, err := tx.GetReview(ctx, reviewID)
		if errors.Is(err, store.ErrReviewNotFound) {
			return newError(
				KindNotFound, "review %s not found", reviewID,
			)
		}
		if err != nil {
			return err
		}

		pending := r.CounterPatchStatus.UnwrapOr("") ==
			review.CounterPatchPending
		if !pending {
			return newError(KindNoPendingCounterPatch,
				"review %s has no pending counter-patch",
				reviewID)
		}

		patch := r.CounterPatch.UnwrapOr("")
		files, err := s.validateSubmission(
			ctx, patch, r.SkipDiffValidation,
			KindStaleCounterPatch,
		)
		if err != nil {
			return err
		}

		r.Diff = fn.Some(patch)
		r.AffectedFiles = files
		r.CounterPatch = fn.None[string]()
		r.CounterPatchAffectedFiles = fn.None[[]string]()
		r.CounterPatchStatus = fn.Some(review.CounterPatchAccepted)
		r.UpdatedAt = now()

		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventCounterPatchAccepted,
			Actor:     string(review.RoleProposer),
		})
		if err != nil {
			return err
		}

		result = r

		return nil
	})
	if err != nil {
		return store.Review{}, asBrokerErr(err)
	}

	s.log.Info("Counter-patch accepted", "review_id", reviewID)
	s.bus.Emit(reviewID)

	return result, nil
}

// RejectCounterPatch discards the pending counter-patch, keeping the
// original proposal in place.
func (s *Service) RejectCounterPatch(ctx context.Context,
	reviewID string) (store.Review, error) {

	var result store.Review

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		r, err := tx.GetReview(ctx, reviewID)
		if errors.Is(err, store.ErrReviewNotFound) {
			return newError(
				KindNotFound, "review %s not found", reviewID,
			)
		}
		if err != nil {
			return err
		}

		pending := r.CounterPatchStatus.UnwrapOr("") ==
			review.CounterPatchPending
		if !pending {
			return newError(KindNoPendingCounterPatch,
				"review %s has no pending counter-patch",
				reviewID)
		}

		r.CounterPatch = fn.None[string]()
		r.CounterPatchAffectedFiles = fn.None[[]string]()
		r.CounterPatchStatus = fn.Some(review.CounterPatchRejected)
		r.UpdatedAt = now()

		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventCounterPatchRejected,
			Actor:     string(review.RoleProposer),
		})
		if err != nil {
			return err
		}

		result = r

		return nil
	})
	if err != nil {
		return store.Review{}, asBrokerErr(err)
	}

	s.log.Info("Counter-patch rejected", "review_id", reviewID)
	s.bus.Emit(reviewID)

	return result, nil
}

// CloseReview moves a review to its terminal state from any non-terminal
// one and drops its notification latch.
func (s *Service) CloseReview(ctx context.Context, reviewID,
	closerRole string) (store.Review, error) {

	if closerRole == "" {
		closerRole = string(review.RoleProposer)
	}

	var result store.Review

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

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
			r.Status, review.StatusClosed,
		)
		if err != nil {
			return newError(KindInvalidTransition,
				"cannot close review in %s", r.Status)
		}

		r.Status = review.StatusClosed
		r.UpdatedAt = now()

		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventClosed,
			Actor:     closerRole,
		})
		if err != nil {
			return err
		}

		result = r

		return nil
	})
	if err != nil {
		return store.Review{}, asBrokerErr(err)
	}

	s.log.Info("Review closed",
		"review_id", reviewID,
		"closer_role", closerRole,
	)

	// Wake any waiters on the terminal transition before the latch is
	// dropped; registered waiters observe the close, later ones time out.
	s.bus.Emit(reviewID)
	s.bus.Cleanup(reviewID)

	return result, nil
}
