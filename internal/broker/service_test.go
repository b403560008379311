package broker

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/gsdlabs/gsd-review-broker/internal/db"
	"github.com/gsdlabs/gsd-review-broker/internal/diff"
	"github.com/gsdlabs/gsd-review-broker/internal/notify"
	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

const sampleDiff = `diff --git a/hello.txt b/hello.txt
index 557db03..980a0d5 100644
--- a/hello.txt
+++ b/hello.txt
@@ -1 +1 @@
-Hello World
+Hello World!
`

const counterDiff = `diff --git a/hello.txt b/hello.txt
index 557db03..08fe272 100644
--- a/hello.txt
+++ b/hello.txt
@@ -1 +1 @@
-Hello World
+Hello World?
`

// newGitRepo creates a throwaway git repo with hello.txt committed, matching
// the blobs the sample diffs were generated from.
func newGitRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=t@t",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init")
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "hello.txt"), []byte("Hello World\n"), 0644,
	))
	run("add", ".")
	run("commit", "-m", "init")

	return dir
}

// driftTree rewrites hello.txt so previously valid diffs stop applying.
func driftTree(t *testing.T, repoRoot string) {
	t.Helper()

	require.NoError(t, os.WriteFile(
		filepath.Join(repoRoot, "hello.txt"),
		[]byte("entirely different content\n"), 0644,
	))
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()

	repoRoot := newGitRepo(t)
	dbPath := filepath.Join(t.TempDir(), "broker.sqlite3")

	sqlite, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: dbPath,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	svc := NewService(
		Config{
			RepoRoot:    repoRoot,
			DBPath:      dbPath,
			Version:     "test",
			WaitTimeout: 500 * time.Millisecond,
		},
		store.NewSQLStore(sqlite.DB, slog.Default()),
		notify.NewBus(),
		diff.NewValidator(repoRoot, slog.Default()),
		slog.Default(),
	)

	return svc, repoRoot
}

func createCodeReview(t *testing.T, svc *Service) CreateReviewResult {
	t.Helper()

	res, err := svc.CreateReview(context.Background(),
		CreateReviewParams{
			Intent:    "Refactor logger",
			AgentType: "gsd-executor",
			AgentRole: "proposer",
			Phase:     "4",
			Plan:      "1",
			Task:      "2",
			Category:  "code_change",
			Diff:      sampleDiff,
		})
	require.NoError(t, err)

	return res
}

func TestHappyPathApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	require.Equal(t, review.StatusPending, created.Status)
	require.EqualValues(t, 1, created.CurrentRound)
	require.Equal(t, review.PriorityNormal, created.Priority)

	listed, err := svc.ListReviews(ctx, ListReviewsParams{
		Status: "pending",
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	claim, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)
	require.Equal(t, review.StatusClaimed, claim.Status)
	require.EqualValues(t, 1, claim.ClaimGeneration)

	verdict, err := svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "approved",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)
	require.Equal(t, review.StatusApproved, verdict.Status)

	closed, err := svc.CloseReview(ctx, created.ReviewID, "proposer")
	require.NoError(t, err)
	require.Equal(t, review.StatusClosed, closed.Status)
	require.EqualValues(t, 1, closed.CurrentRound)

	events, err := svc.Timeline(ctx, created.ReviewID)
	require.NoError(t, err)

	var kinds []review.EventType
	for _, e := range events {
		kinds = append(kinds, e.EventType)
	}
	require.Equal(t, []review.EventType{
		review.EventReviewCreated,
		review.EventClaimed,
		review.EventVerdictSubmitted,
		review.EventClosed,
	}, kinds)
}

func TestCounterPatchAccept(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "changes_requested",
		Notes:           "prefer X",
		CounterPatch:    counterDiff,
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	proposal, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)
	require.Equal(t,
		fn.Some(review.CounterPatchPending),
		proposal.CounterPatchStatus,
	)

	accepted, err := svc.AcceptCounterPatch(ctx, created.ReviewID)
	require.NoError(t, err)
	require.Equal(t, fn.Some(counterDiff), accepted.Diff)
	require.Equal(t, []string{"hello.txt"}, accepted.AffectedFiles)
	require.True(t, accepted.CounterPatch.IsNone())
	require.Equal(t,
		fn.Some(review.CounterPatchAccepted),
		accepted.CounterPatchStatus,
	)

	events, err := svc.Timeline(ctx, created.ReviewID)
	require.NoError(t, err)

	var kinds []review.EventType
	for _, e := range events {
		kinds = append(kinds, e.EventType)
	}
	require.Contains(t, kinds, review.EventCounterPatchSubmit)
	require.Contains(t, kinds, review.EventCounterPatchAccepted)
	require.Less(t,
		indexOf(kinds, review.EventCounterPatchSubmit),
		indexOf(kinds, review.EventCounterPatchAccepted),
	)
}

func indexOf(kinds []review.EventType, want review.EventType) int {
	for i, k := range kinds {
		if k == want {
			return i
		}
	}

	return -1
}

func TestStaleCounterPatch(t *testing.T) {
	svc, repoRoot := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "changes_requested",
		Notes:           "prefer X",
		CounterPatch:    counterDiff,
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	before, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)

	driftTree(t, repoRoot)

	_, err = svc.AcceptCounterPatch(ctx, created.ReviewID)
	require.Equal(t, KindStaleCounterPatch, ErrKind(err))

	// The row is unchanged from the moment before the call.
	after, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestTurnEnforcement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "reviewer",
		Body:       "q1",
	})
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "reviewer",
		Body:       "q2",
	})
	require.Equal(t, KindTurnViolation, ErrKind(err))

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "proposer",
		Body:       "a1",
	})
	require.NoError(t, err)
}

func TestRevisionFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "changes_requested",
		Notes:           "try again",
		CounterPatch:    counterDiff,
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	revised, err := svc.CreateReview(ctx, CreateReviewParams{
		ReviewID:  created.ReviewID,
		Intent:    "v2",
		AgentType: "gsd-executor",
		AgentRole: "proposer",
		Phase:     "4",
		Diff:      sampleDiff,
	})
	require.NoError(t, err)
	require.Equal(t, created.ReviewID, revised.ReviewID)
	require.Equal(t, review.StatusPending, revised.Status)
	require.EqualValues(t, 2, revised.CurrentRound)

	// Priority is frozen across revisions.
	require.Equal(t, created.Priority, revised.Priority)

	r, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)
	require.True(t, r.ClaimedBy.IsNone())
	require.True(t, r.CounterPatch.IsNone())
	require.True(t, r.CounterPatchStatus.IsNone())

	claim, err := svc.ClaimReview(ctx, created.ReviewID, "rev-b")
	require.NoError(t, err)
	require.EqualValues(t, 2, claim.ClaimGeneration)
}

func TestRevisionRequiresChangesRequested(t *testing.T) {
	svc, _ := newTestService(t)

	created := createCodeReview(t, svc)

	_, err := svc.CreateReview(context.Background(), CreateReviewParams{
		ReviewID:  created.ReviewID,
		Intent:    "v2",
		AgentType: "gsd-executor",
		AgentRole: "proposer",
		Phase:     "4",
	})
	require.Equal(t, KindInvalidState, ErrKind(err))
}

func TestConcurrentClaim(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []error
	)
	for _, reviewer := range []string{"rev-a", "rev-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			_, err := svc.ClaimReview(ctx, created.ReviewID, id)

			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}(reviewer)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case ErrKind(err) == KindInvalidTransition:
			losses++
		default:
			t.Fatalf("unexpected claim outcome: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	r, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)
	require.EqualValues(t, 1, r.ClaimGeneration)
}

func TestClaimAutoReject(t *testing.T) {
	svc, repoRoot := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)

	// Drift the tree after submission so the claim-time re-validation
	// fails.
	driftTree(t, repoRoot)

	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.Equal(t, KindDiffConflict, ErrKind(err))

	r, err := svc.GetProposal(ctx, created.ReviewID)
	require.NoError(t, err)
	require.Equal(t, review.StatusChangesRequested, r.Status)
	require.True(t, r.VerdictReason.IsSome())

	events, err := svc.Timeline(ctx, created.ReviewID)
	require.NoError(t, err)
	require.Equal(t, review.EventAutoRejected,
		events[len(events)-1].EventType)
}

func TestSkipValidationSuppressesClaimCheck(t *testing.T) {
	svc, repoRoot := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateReview(ctx, CreateReviewParams{
		Intent:             "post-commit diff",
		AgentType:          "gsd-executor",
		AgentRole:          "proposer",
		Phase:              "4",
		Diff:               sampleDiff,
		SkipDiffValidation: true,
	})
	require.NoError(t, err)

	driftTree(t, repoRoot)

	claim, err := svc.ClaimReview(ctx, res.ReviewID, "rev-a")
	require.NoError(t, err)
	require.Equal(t, review.StatusClaimed, claim.Status)
}

func TestStaleClaimGeneration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "approved",
		ClaimGeneration: 7,
	})
	require.Equal(t, KindStaleClaimGeneration, ErrKind(err))
}

func TestCounterPatchNotAllowedOnApproval(t *testing.T) {
	svc, _ := newTestService(t)

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(
		context.Background(), created.ReviewID, "rev-a",
	)
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(context.Background(),
		SubmitVerdictParams{
			ReviewID:        created.ReviewID,
			Verdict:         "approved",
			CounterPatch:    counterDiff,
			ClaimGeneration: 1,
		})
	require.Equal(t, KindCounterPatchNotAllowed, ErrKind(err))
}

func TestCommentMovesClaimedToInReview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	verdict, err := svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "comment",
		Notes:           "looking",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)
	require.Equal(t, review.StatusInReview, verdict.Status)

	// Further comments keep the state.
	verdict, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "comment",
		Notes:           "still looking",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)
	require.Equal(t, review.StatusInReview, verdict.Status)
}

func TestDiscussionRoundFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "reviewer",
		Body:       "round one question",
		Metadata:   `{"hunk": 3}`,
	})
	require.NoError(t, err)

	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        created.ReviewID,
		Verdict:         "changes_requested",
		Notes:           "redo",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	_, err = svc.CreateReview(ctx, CreateReviewParams{
		ReviewID:  created.ReviewID,
		Intent:    "v2",
		AgentType: "gsd-executor",
		AgentRole: "proposer",
		Phase:     "4",
		Diff:      sampleDiff,
	})
	require.NoError(t, err)

	_, err = svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "proposer",
		Body:       "round two answer",
	})
	require.NoError(t, err)

	roundTwo, err := svc.GetDiscussion(
		ctx, created.ReviewID, fn.Some[int64](2),
	)
	require.NoError(t, err)
	require.Len(t, roundTwo, 1)
	require.Equal(t, "round two answer", roundTwo[0].Body)

	all, err := svc.GetDiscussion(
		ctx, created.ReviewID, fn.None[int64](),
	)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, map[string]any{"hunk": float64(3)},
		all[0].Metadata)
	require.False(t, all[0].MalformedMetadata)
}

func TestDiscussionMalformedMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "reviewer",
		Body:       "note",
		Metadata:   `{not json`,
	})
	require.NoError(t, err)

	msgs, err := svc.GetDiscussion(
		ctx, created.ReviewID, fn.None[int64](),
	)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Nil(t, msgs[0].Metadata)
	require.True(t, msgs[0].MalformedMetadata)
}

func TestListReviewsLongPoll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A creation racing the long-poll wakes it before the budget.
	go func() {
		time.Sleep(100 * time.Millisecond)
		createCodeReview(t, svc)
	}()

	start := time.Now()
	listed, err := svc.ListReviews(ctx, ListReviewsParams{
		Status: "pending",
		Wait:   true,
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Less(t, time.Since(start), svc.cfg.WaitTimeout)
}

func TestListReviewsLongPollTimeout(t *testing.T) {
	svc, _ := newTestService(t)

	start := time.Now()
	listed, err := svc.ListReviews(context.Background(),
		ListReviewsParams{
			Status: "pending",
			Wait:   true,
		})
	require.NoError(t, err)
	require.Empty(t, listed)
	require.GreaterOrEqual(t, time.Since(start), svc.cfg.WaitTimeout)
}

func TestListReviewsLongPollUnrelatedActivity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Earlier activity leaves a stored edge on the global latch, and a
	// mid-poll write to a non-matching review fires it again. Neither
	// matches the filter, so the poll must hold the full budget and
	// still return empty.
	createCodeReview(t, svc)

	go func() {
		time.Sleep(100 * time.Millisecond)
		createCodeReview(t, svc)
	}()

	start := time.Now()
	listed, err := svc.ListReviews(ctx, ListReviewsParams{
		Status: "approved",
		Wait:   true,
	})
	require.NoError(t, err)
	require.Empty(t, listed)
	require.GreaterOrEqual(t, time.Since(start), svc.cfg.WaitTimeout)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// One approved, one rejected-then-open review.
	first := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, first.ReviewID, "rev-a")
	require.NoError(t, err)
	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        first.ReviewID,
		Verdict:         "approved",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	second := createCodeReview(t, svc)
	_, err = svc.ClaimReview(ctx, second.ReviewID, "rev-a")
	require.NoError(t, err)
	_, err = svc.SubmitVerdict(ctx, SubmitVerdictParams{
		ReviewID:        second.ReviewID,
		Verdict:         "changes_requested",
		Notes:           "nope",
		ClaimGeneration: 1,
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, fn.None[string]())
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TotalVerdicts)
	require.InDelta(t, 0.5, stats.ApprovalRate, 1e-9)
	require.EqualValues(t, 1,
		stats.CountsByStatus[review.StatusApproved])
	require.EqualValues(t, 1,
		stats.CountsByStatus[review.StatusChangesRequested])
	require.EqualValues(t, 2,
		stats.CountsByCategory[review.CategoryCodeChange])

	// Both reviews spent measurable time in pending and claimed.
	require.Contains(t, stats.AvgTimeInState, review.StatusPending)
	require.Contains(t, stats.AvgTimeInState, review.StatusClaimed)
}

func TestActivityFeed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.ClaimReview(ctx, created.ReviewID, "rev-a")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, AddMessageParams{
		ReviewID:   created.ReviewID,
		SenderRole: "reviewer",
		Body:       "first question",
	})
	require.NoError(t, err)

	feed, err := svc.ActivityFeed(ctx, ListReviewsParams{})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.EqualValues(t, 1, feed[0].MessageCount)
	require.Equal(t, "first question",
		feed[0].LastMessage.UnwrapOr(store.Message{}).Body)
}

func TestCloseCleansUpLatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := createCodeReview(t, svc)
	_, err := svc.CloseReview(ctx, created.ReviewID, "proposer")
	require.NoError(t, err)

	require.Zero(t, svc.Bus().NumLatches())

	_, err = svc.CloseReview(ctx, created.ReviewID, "proposer")
	require.Equal(t, KindInvalidTransition, ErrKind(err))
}
