package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/diff"
	"github.com/gsdlabs/gsd-review-broker/internal/notify"
	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// CreateReviewParams carries the create_review inputs. Empty optional
// strings mean absent. A non-empty ReviewID turns the call into a revision
// of an existing review.
type CreateReviewParams struct {
	Intent      string
	AgentType   string
	AgentRole   string
	Phase       string
	Plan        string
	Task        string
	Project     string
	Category    string
	Description string
	Diff        string

	ReviewID           string
	SkipDiffValidation bool
}

// CreateReviewResult is the create_review response.
type CreateReviewResult struct {
	ReviewID     string
	Status       review.Status
	CurrentRound int64
	Priority     review.Priority
}

// CreateReview opens a new review, or revises an existing one when ReviewID
// is set. The diff is dry-run validated unless skip-validation is requested,
// and the affected file list is derived from it at this point.
func (s *Service) CreateReview(ctx context.Context,
	params CreateReviewParams) (CreateReviewResult, error) {

	if params.Intent == "" {
		return CreateReviewResult{}, newError(
			KindInvalidArgument, "intent must not be empty",
		)
	}
	if params.Phase == "" {
		return CreateReviewResult{}, newError(
			KindInvalidArgument, "phase must not be empty",
		)
	}
	if !review.Role(params.AgentRole).Valid() {
		return CreateReviewResult{}, newError(
			KindInvalidArgument, "unknown agent_role %q",
			params.AgentRole,
		)
	}
	if params.Category != "" &&
		!review.Category(params.Category).Valid() {

		return CreateReviewResult{}, newError(
			KindInvalidArgument, "unknown category %q",
			params.Category,
		)
	}

	affected, err := s.validateSubmission(
		ctx, params.Diff, params.SkipDiffValidation,
		KindDiffValidationFailed,
	)
	if err != nil {
		return CreateReviewResult{}, err
	}

	if params.ReviewID != "" {
		return s.reviseReview(ctx, params, affected)
	}

	return s.openReview(ctx, params, affected)
}

// validateSubmission extracts the affected files of a diff and, unless
// skipped, dry-run applies it. failKind selects which taxonomy kind a
// conflict maps to, since create and verdict surface it differently.
func (s *Service) validateSubmission(ctx context.Context, diffText string,
	skip bool, failKind Kind) ([]string, error) {

	affected, err := diff.AffectedFiles(diffText)
	if err != nil {
		return nil, newError(failKind, "unparseable diff: %v", err)
	}

	if skip || diffText == "" {
		return affected, nil
	}

	if err := s.validator.DryRunApply(ctx, diffText); err != nil {
		var applyErr *diff.ApplyError
		if errors.As(err, &applyErr) {
			return nil, newError(failKind, "%s", applyErr.Stderr)
		}

		return nil, newError(failKind, "%v", err)
	}

	return affected, nil
}

// openReview inserts a brand-new review in pending state.
func (s *Service) openReview(ctx context.Context, params CreateReviewParams,
	affected []string) (CreateReviewResult, error) {

	project := params.Project
	if project == "" {
		project = s.cfg.RepoRoot
	}

	ts := now()
	r := store.Review{
		ID:                 uuid.NewString(),
		Status:             review.StatusPending,
		Intent:             params.Intent,
		Description:        optFromString(params.Description),
		Diff:               optFromString(params.Diff),
		AffectedFiles:      affected,
		SkipDiffValidation: params.SkipDiffValidation,
		AgentType:          params.AgentType,
		AgentRole:          params.AgentRole,
		Phase:              params.Phase,
		Plan:               optFromString(params.Plan),
		Task:               optFromString(params.Task),
		Project:            project,
		Priority: review.InferPriority(
			params.AgentType, params.Phase, params.Task,
		),
		CurrentRound: 1,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if params.Category != "" {
		r.Category = fn.Some(review.Category(params.Category))
	}

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		if err := tx.InsertReview(ctx, r); err != nil {
			return err
		}

		_, err := tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventReviewCreated,
			Actor:     params.AgentRole,
			Metadata: eventMeta(map[string]any{
				"round":    1,
				"priority": string(r.Priority),
			}),
		})

		return err
	})
	if err != nil {
		return CreateReviewResult{}, dbError(err)
	}

	s.log.Info("Review created",
		"review_id", r.ID,
		"priority", r.Priority,
		"category", params.Category,
	)
	s.bus.Emit(r.ID)

	return CreateReviewResult{
		ReviewID:     r.ID,
		Status:       r.Status,
		CurrentRound: r.CurrentRound,
		Priority:     r.Priority,
	}, nil
}

// reviseReview re-submits a proposal against an existing review that is in
// changes_requested. The round advances, the claim is released, any pending
// counter-patch is dropped, and priority stays frozen.
func (s *Service) reviseReview(ctx context.Context,
	params CreateReviewParams,
	affected []string) (CreateReviewResult, error) {

	var result CreateReviewResult

	err := s.writeTx(ctx, func(ctx context.Context,
		tx *store.SQLStore) error {

		r, err := tx.GetReview(ctx, params.ReviewID)
		if errors.Is(err, store.ErrReviewNotFound) {
			return newError(
				KindNotFound, "review %s not found",
				params.ReviewID,
			)
		}
		if err != nil {
			return err
		}

		if r.Status != review.StatusChangesRequested {
			return newError(KindInvalidState,
				"revision requires changes_requested, "+
					"review is %s", r.Status)
		}

		r.CurrentRound++
		r.Status = review.StatusPending
		r.ClaimedBy = fn.None[string]()
		r.CounterPatch = fn.None[string]()
		r.CounterPatchAffectedFiles = fn.None[[]string]()
		r.CounterPatchStatus = fn.None[review.CounterPatchStatus]()
		r.VerdictReason = fn.None[string]()

		r.Intent = params.Intent
		r.Description = optFromString(params.Description)
		r.Diff = optFromString(params.Diff)
		r.AffectedFiles = affected
		r.SkipDiffValidation = params.SkipDiffValidation
		r.UpdatedAt = now()

		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}

		_, err = tx.AppendEvent(ctx, store.AppendEventParams{
			ReviewID:  r.ID,
			EventType: review.EventRevisionCreated,
			Actor:     params.AgentRole,
			Metadata: eventMeta(map[string]any{
				"round": r.CurrentRound,
			}),
		})
		if err != nil {
			return err
		}

		result = CreateReviewResult{
			ReviewID:     r.ID,
			Status:       r.Status,
			CurrentRound: r.CurrentRound,
			Priority:     r.Priority,
		}

		return nil
	})
	if err != nil {
		return CreateReviewResult{}, asBrokerErr(err)
	}

	s.log.Info("Review revised",
		"review_id", result.ReviewID,
		"round", result.CurrentRound,
	)
	s.bus.Emit(result.ReviewID)

	return result, nil
}

// ListReviewsParams carries the list_reviews inputs.
type ListReviewsParams struct {
	Status   string
	Category string
	Project  string

	// Wait turns the call into a long-poll: with no matching rows the
	// broker blocks on the global latch and re-queries on every wake
	// until a row matches or the wait budget elapses.
	Wait bool
}

// ListReviews returns reviews ordered by priority tier then age.
func (s *Service) ListReviews(ctx context.Context,
	params ListReviewsParams) ([]store.Review, error) {

	filter := store.ReviewFilter{
		Project: optFromString(params.Project),
	}
	if params.Status != "" {
		st := review.Status(params.Status)
		if !st.Valid() {
			return nil, newError(KindInvalidArgument,
				"unknown status %q", params.Status)
		}
		filter.Status = fn.Some(st)
	}
	if params.Category != "" {
		c := review.Category(params.Category)
		if !c.Valid() {
			return nil, newError(KindInvalidArgument,
				"unknown category %q", params.Category)
		}
		filter.Category = fn.Some(c)
	}

	reviews, err := s.store.ListReviews(ctx, filter)
	if err != nil {
		return nil, dbError(err)
	}

	if len(reviews) > 0 || !params.Wait {
		return reviews, nil
	}

	// Empty and waiting: park on the any-review latch and re-query on
	// every wake. The global latch fires on writes to any review, and a
	// stored edge from earlier activity is consumed on the first wait, so
	// a single wake proves nothing about this filter. Keep looping until
	// a row matches or the budget elapses; the empty set is the answer
	// only after the full budget. A timeout is not an error.
	deadline := time.Now().Add(s.cfg.WaitTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return reviews, nil
		}

		outcome := s.bus.WaitAny(ctx, remaining)

		reviews, err = s.store.ListReviews(ctx, filter)
		if err != nil {
			return nil, dbError(err)
		}
		if len(reviews) > 0 || outcome != notify.OutcomeFired {
			return reviews, nil
		}
	}
}

// GetReviewStatus returns the full review row. With wait set it first parks
// on the per-review latch so pollers ride state changes instead of looping.
func (s *Service) GetReviewStatus(ctx context.Context, reviewID string,
	wait bool) (store.Review, error) {

	r, err := s.getReview(ctx, reviewID)
	if err != nil {
		return store.Review{}, err
	}

	if !wait {
		return r, nil
	}

	s.bus.Wait(ctx, reviewID, s.cfg.WaitTimeout)

	return s.getReview(ctx, reviewID)
}

// GetProposal returns the review with its diff, counter-patch and derived
// file lists. It is a read; no lock, no transaction.
func (s *Service) GetProposal(ctx context.Context,
	reviewID string) (store.Review, error) {

	return s.getReview(ctx, reviewID)
}

// getReview fetches one row, translating the store sentinel.
func (s *Service) getReview(ctx context.Context,
	reviewID string) (store.Review, error) {

	r, err := s.store.GetReview(ctx, reviewID)
	if errors.Is(err, store.ErrReviewNotFound) {
		return store.Review{}, newError(
			KindNotFound, "review %s not found", reviewID,
		)
	}
	if err != nil {
		return store.Review{}, dbError(err)
	}

	return r, nil
}

// asBrokerErr passes broker errors through and wraps anything else as a
// db_error. Transactions surface domain errors by returning them from the
// tx closure, which also rolls the transaction back.
func asBrokerErr(err error) error {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr
	}

	return dbError(err)
}
