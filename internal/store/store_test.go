package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/gsdlabs/gsd-review-broker/internal/db"
	"github.com/gsdlabs/gsd-review-broker/internal/review"
)

// newTestStore opens a migrated store over a throwaway database file and
// returns the path so restart tests can reopen it.
func newTestStore(t *testing.T) (*SQLStore, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "broker.sqlite3")
	sqlite, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: dbPath,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return NewSQLStore(sqlite.DB, slog.Default()), dbPath
}

// newPendingReview builds a review row with typical creation-time values.
func newPendingReview() Review {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return Review{
		ID:            uuid.NewString(),
		Status:        review.StatusPending,
		Intent:        "Refactor logger",
		Description:   fn.Some("long form proposal"),
		Diff:          fn.Some("diff --git a/x b/x\n"),
		AffectedFiles: []string{"x"},
		AgentType:     "gsd-executor",
		AgentRole:     string(review.RoleProposer),
		Phase:         "4",
		Plan:          fn.Some("1"),
		Task:          fn.Some("2"),
		Project:       "/repo",
		Category:      fn.Some(review.CategoryCodeChange),
		Priority:      review.PriorityNormal,
		CurrentRound:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TestReviewRoundTrip verifies every persisted attribute survives an
// insert/get cycle.
func TestReviewRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, want))

	got, err := s.GetReview(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGetReviewNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetReview(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrReviewNotFound)
}

func TestClaimPending(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, r))

	claimed, err := s.ClaimPending(ctx, r.ID, "rev-a", time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, review.StatusClaimed, got.Status)
	require.Equal(t, fn.Some("rev-a"), got.ClaimedBy)
	require.EqualValues(t, 1, got.ClaimGeneration)

	// A second claim finds no pending row.
	claimed, err = s.ClaimPending(ctx, r.ID, "rev-b", time.Now())
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestListReviewsOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)

	mk := func(p review.Priority, offset time.Duration) string {
		r := newPendingReview()
		r.Priority = p
		r.CreatedAt = base.Add(offset)
		r.UpdatedAt = r.CreatedAt
		require.NoError(t, s.InsertReview(ctx, r))
		return r.ID
	}

	lowOld := mk(review.PriorityLow, 0)
	normalNew := mk(review.PriorityNormal, 2*time.Second)
	normalOld := mk(review.PriorityNormal, 1*time.Second)
	critical := mk(review.PriorityCritical, 3*time.Second)

	got, err := s.ListReviews(ctx, ReviewFilter{
		Status: fn.Some(review.StatusPending),
	})
	require.NoError(t, err)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	require.Equal(
		t, []string{critical, normalOld, normalNew, lowOld}, ids,
	)
}

func TestListReviewsFilters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r1 := newPendingReview()
	r1.Project = "/alpha"
	require.NoError(t, s.InsertReview(ctx, r1))

	r2 := newPendingReview()
	r2.Project = "/beta"
	r2.Category = fn.Some(review.CategoryPlanReview)
	require.NoError(t, s.InsertReview(ctx, r2))

	got, err := s.ListReviews(ctx, ReviewFilter{
		Project: fn.Some("/beta"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, r2.ID, got[0].ID)

	got, err = s.ListReviews(ctx, ReviewFilter{
		Category: fn.Some(review.CategoryCodeChange),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, r1.ID, got[0].ID)
}

// TestMessageInsertionOrder verifies that rank, not the coarse timestamp,
// orders the discussion. Both inserts land within the same millisecond
// often enough for this to matter.
func TestMessageInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, r))

	first, err := s.InsertMessage(ctx, InsertMessageParams{
		ReviewID:   r.ID,
		SenderRole: review.RoleReviewer,
		Round:      1,
		Body:       "q1",
	})
	require.NoError(t, err)

	second, err := s.InsertMessage(ctx, InsertMessageParams{
		ReviewID:   r.ID,
		SenderRole: review.RoleProposer,
		Round:      1,
		Body:       "a1",
	})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	msgs, err := s.ListMessages(ctx, r.ID, fn.None[int64]())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "q1", msgs[0].Body)
	require.Equal(t, "a1", msgs[1].Body)

	last, err := s.LastMessage(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, last.IsSome())
	require.Equal(t, "a1", last.UnwrapOr(Message{}).Body)
}

func TestListMessagesByRound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, r))

	for round := int64(1); round <= 2; round++ {
		_, err := s.InsertMessage(ctx, InsertMessageParams{
			ReviewID:   r.ID,
			SenderRole: review.RoleReviewer,
			Round:      round,
			Body:       "round note",
		})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, r.ID, fn.Some[int64](2))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.EqualValues(t, 2, msgs[0].Round)
}

func TestAuditAppendOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, r))

	kinds := []review.EventType{
		review.EventReviewCreated, review.EventClaimed,
		review.EventVerdictSubmitted, review.EventClosed,
	}
	for _, kind := range kinds {
		_, err := s.AppendEvent(ctx, AppendEventParams{
			ReviewID:  r.ID,
			EventType: kind,
			Actor:     "test",
		})
		require.NoError(t, err)
	}

	events, err := s.ListEvents(ctx, fn.Some(r.ID))
	require.NoError(t, err)
	require.Len(t, events, len(kinds))

	for i, e := range events {
		require.Equal(t, kinds[i], e.EventType)
		if i > 0 {
			require.Greater(t, e.ID, events[i-1].ID)
		}
	}
}

func TestWithTxRollback(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r := newPendingReview()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx *SQLStore) error {
		if err := tx.InsertReview(ctx, r); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetReview(ctx, r.ID)
	require.ErrorIs(t, err, ErrReviewNotFound)
}

// TestRestartPreservesRows closes and reopens the database and checks that
// reviews and audit events survive bitwise.
func TestRestartPreservesRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "broker.sqlite3")
	ctx := context.Background()

	sqlite, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: dbPath,
	}, slog.Default())
	require.NoError(t, err)

	s := NewSQLStore(sqlite.DB, slog.Default())
	want := newPendingReview()
	require.NoError(t, s.InsertReview(ctx, want))

	wantEvent, err := s.AppendEvent(ctx, AppendEventParams{
		ReviewID:  want.ID,
		EventType: review.EventReviewCreated,
		Actor:     string(review.RoleProposer),
		Metadata:  fn.Some(`{"round":1}`),
	})
	require.NoError(t, err)
	require.NoError(t, sqlite.Close())

	// Reopen: migrations re-run idempotently.
	sqlite, err = db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: dbPath,
	}, slog.Default())
	require.NoError(t, err)
	defer sqlite.Close()

	s = NewSQLStore(sqlite.DB, slog.Default())

	got, err := s.GetReview(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, want, got)

	events, err := s.ListEvents(ctx, fn.Some(want.ID))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, wantEvent, events[0])
}

func TestCountByStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertReview(ctx, newPendingReview()))
	}
	closed := newPendingReview()
	closed.Status = review.StatusClosed
	require.NoError(t, s.InsertReview(ctx, closed))

	counts, err := s.CountByStatus(ctx, fn.None[string]())
	require.NoError(t, err)
	require.EqualValues(t, 3, counts[review.StatusPending])
	require.EqualValues(t, 1, counts[review.StatusClosed])
}
