package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// activityFeedLimit caps the feed at the most recently touched reviews.
const activityFeedLimit = 20

// FeedEntry is one activity feed row: a review plus a preview of its latest
// discussion message.
type FeedEntry struct {
	Review       store.Review
	MessageCount int64
	LastMessage  fn.Option[store.Message]
}

// ActivityFeed returns the most recently updated reviews with their last
// message, newest first.
func (s *Service) ActivityFeed(ctx context.Context,
	params ListReviewsParams) ([]FeedEntry, error) {

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

	reviews, err := s.store.RecentReviews(ctx, filter, activityFeedLimit)
	if err != nil {
		return nil, dbError(err)
	}

	entries := make([]FeedEntry, 0, len(reviews))
	for _, r := range reviews {
		count, err := s.store.CountMessages(ctx, r.ID)
		if err != nil {
			return nil, dbError(err)
		}

		last, err := s.store.LastMessage(ctx, r.ID)
		if err != nil {
			return nil, dbError(err)
		}

		entries = append(entries, FeedEntry{
			Review:       r,
			MessageCount: count,
			LastMessage:  last,
		})
	}

	return entries, nil
}

// AuditLog returns audit events in append order, for one review or across
// the whole store.
func (s *Service) AuditLog(ctx context.Context,
	reviewID fn.Option[string]) ([]store.AuditEvent, error) {

	var notFoundErr error
	reviewID.WhenSome(func(id string) {
		_, err := s.getReview(ctx, id)
		notFoundErr = err
	})
	if notFoundErr != nil {
		return nil, notFoundErr
	}

	events, err := s.store.ListEvents(ctx, reviewID)
	if err != nil {
		return nil, dbError(err)
	}

	return events, nil
}

// Timeline returns the chronological event sequence of one review.
func (s *Service) Timeline(ctx context.Context,
	reviewID string) ([]store.AuditEvent, error) {

	if _, err := s.getReview(ctx, reviewID); err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, fn.Some(reviewID))
	if err != nil {
		return nil, dbError(err)
	}

	return events, nil
}

// StatsResult aggregates the lifetime metrics of the store. Counts come from
// the live review rows; rates and timings derive from the audit log, since
// row status is a moving target.
type StatsResult struct {
	CountsByStatus   map[review.Status]int64
	CountsByCategory map[review.Category]int64
	TotalVerdicts    int64

	// ApprovalRate is approved verdict_submitted events over all
	// verdict_submitted events, 0 when no verdicts exist.
	ApprovalRate float64

	// AvgTimeToVerdict averages the delta from each
	// review_created/revision_created to the next verdict_submitted of
	// the same review. Zero when no such pair exists.
	AvgTimeToVerdict time.Duration

	// AvgTimeInState averages, per state, the time between entering the
	// state and the next state-transition event of the same review.
	// Open-ended stays are excluded.
	AvgTimeInState map[review.Status]time.Duration
}

// Stats computes the store-lifetime metrics, optionally scoped to one
// project.
func (s *Service) Stats(ctx context.Context,
	project fn.Option[string]) (StatsResult, error) {

	counts, err := s.store.CountByStatus(ctx, project)
	if err != nil {
		return StatsResult{}, dbError(err)
	}

	categories, err := s.store.CountByCategory(ctx, project)
	if err != nil {
		return StatsResult{}, dbError(err)
	}

	events, err := s.store.ListEventsForProject(ctx, project)
	if err != nil {
		return StatsResult{}, dbError(err)
	}

	result := StatsResult{
		CountsByStatus:   counts,
		CountsByCategory: categories,
		AvgTimeInState:   make(map[review.Status]time.Duration),
	}

	result.TotalVerdicts, result.ApprovalRate = approvalRate(events)
	result.AvgTimeToVerdict = avgTimeToVerdict(events)

	for state, d := range avgTimeInState(events) {
		result.AvgTimeInState[state] = d
	}

	return result, nil
}

// eventVerdict extracts the verdict field from a verdict_submitted event's
// metadata.
func eventVerdict(e store.AuditEvent) (review.Verdict, bool) {
	raw := e.Metadata.UnwrapOr("")
	if raw == "" {
		return "", false
	}

	var meta struct {
		Verdict string `json:"verdict"`
	}
	if json.Unmarshal([]byte(raw), &meta) != nil {
		return "", false
	}

	return review.Verdict(meta.Verdict), meta.Verdict != ""
}

// approvalRate tallies verdict_submitted events and the approved fraction.
func approvalRate(events []store.AuditEvent) (int64, float64) {
	var total, approved int64
	for _, e := range events {
		if e.EventType != review.EventVerdictSubmitted {
			continue
		}

		total++
		if v, ok := eventVerdict(e); ok &&
			v == review.VerdictApproved {

			approved++
		}
	}

	if total == 0 {
		return 0, 0
	}

	return total, float64(approved) / float64(total)
}

// avgTimeToVerdict pairs each submission event with the next verdict of the
// same review and averages the deltas.
func avgTimeToVerdict(events []store.AuditEvent) time.Duration {
	// Events arrive in append order, which is chronological per review.
	open := make(map[string]time.Time)

	var (
		total time.Duration
		n     int64
	)
	for _, e := range events {
		switch e.EventType {
		case review.EventReviewCreated, review.EventRevisionCreated:
			open[e.ReviewID] = e.CreatedAt

		case review.EventVerdictSubmitted:
			start, ok := open[e.ReviewID]
			if !ok {
				continue
			}

			total += e.CreatedAt.Sub(start)
			n++
			delete(open, e.ReviewID)
		}
	}

	if n == 0 {
		return 0
	}

	return total / time.Duration(n)
}

// eventState maps a lifecycle event to the state the review entered, or
// false for events that are not state transitions (messages, counter-patch
// bookkeeping).
func eventState(e store.AuditEvent) (review.Status, bool) {
	switch e.EventType {
	case review.EventReviewCreated, review.EventRevisionCreated:
		return review.StatusPending, true

	case review.EventClaimed:
		return review.StatusClaimed, true

	case review.EventAutoRejected:
		return review.StatusChangesRequested, true

	case review.EventClosed:
		return review.StatusClosed, true

	case review.EventVerdictSubmitted:
		v, ok := eventVerdict(e)
		if !ok {
			return "", false
		}
		switch v {
		case review.VerdictApproved:
			return review.StatusApproved, true
		case review.VerdictChangesRequested:
			return review.StatusChangesRequested, true
		case review.VerdictComment:
			return review.StatusInReview, true
		}
	}

	return "", false
}

// avgTimeInState pairs consecutive state-transition events per review and
// averages the time spent in each state. The last state of every review is
// open-ended and contributes nothing.
func avgTimeInState(events []store.AuditEvent) map[review.Status]time.Duration {
	type stay struct {
		state review.Status
		since time.Time
	}

	current := make(map[string]stay)
	totals := make(map[review.Status]time.Duration)
	counts := make(map[review.Status]int64)

	for _, e := range events {
		state, ok := eventState(e)
		if !ok {
			continue
		}

		if prev, ok := current[e.ReviewID]; ok {
			totals[prev.state] += e.CreatedAt.Sub(prev.since)
			counts[prev.state]++
		}

		current[e.ReviewID] = stay{state: state, since: e.CreatedAt}
	}

	avgs := make(map[review.Status]time.Duration, len(totals))
	for state, total := range totals {
		avgs[state] = total / time.Duration(counts[state])
	}

	return avgs
}

// InfoResult describes the running broker instance.
type InfoResult struct {
	Name         string
	Version      string
	RepoRoot     string
	DatabasePath string
	StartedAt    string
	Uptime       time.Duration
}

// Info reports static facts about this broker process.
func (s *Service) Info(_ context.Context) InfoResult {
	return InfoResult{
		Name:         "gsd-review-broker",
		Version:      s.cfg.Version,
		RepoRoot:     s.cfg.RepoRoot,
		DatabasePath: s.cfg.DBPath,
		StartedAt:    FormatTime(s.startedAt),
		Uptime:       time.Since(s.startedAt),
	}
}
