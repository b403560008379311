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

// reviewColumns is the canonical column list; every review query selects in
// this order so a single scan helper can be shared.
const reviewColumns = `id, status, intent, description, diff,
	affected_files, skip_diff_validation, agent_type, agent_role, phase,
	plan, task, project, category, priority, current_round, claimed_by,
	claim_generation, verdict_reason, counter_patch,
	counter_patch_affected_files, counter_patch_status, created_at_ms,
	updated_at_ms`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanReview reads one review row in reviewColumns order.
func scanReview(row rowScanner) (Review, error) {
	var (
		r             Review
		status        string
		description   sql.NullString
		diff          sql.NullString
		affectedFiles string
		skipVal       int64
		plan          sql.NullString
		task          sql.NullString
		category      sql.NullString
		priority      string
		claimedBy     sql.NullString
		verdictReason sql.NullString
		counterPatch  sql.NullString
		cpFiles       sql.NullString
		cpStatus      sql.NullString
		createdAtMs   int64
		updatedAtMs   int64
	)

	err := row.Scan(
		&r.ID, &status, &r.Intent, &description, &diff,
		&affectedFiles, &skipVal, &r.AgentType, &r.AgentRole, &r.Phase,
		&plan, &task, &r.Project, &category, &priority,
		&r.CurrentRound, &claimedBy, &r.ClaimGeneration,
		&verdictReason, &counterPatch, &cpFiles, &cpStatus,
		&createdAtMs, &updatedAtMs,
	)
	if err != nil {
		return Review{}, err
	}

	r.Status = review.Status(status)
	r.Description = optString(description)
	r.Diff = optString(diff)
	r.AffectedFiles = decodeFiles(affectedFiles)
	r.SkipDiffValidation = skipVal != 0
	r.Plan = optString(plan)
	r.Task = optString(task)
	r.Priority = review.Priority(priority)
	r.ClaimedBy = optString(claimedBy)
	r.VerdictReason = optString(verdictReason)
	r.CounterPatch = optString(counterPatch)
	r.CreatedAt = timeFromMs(createdAtMs)
	r.UpdatedAt = timeFromMs(updatedAtMs)

	r.Category = fn.None[review.Category]()
	optString(category).WhenSome(func(s string) {
		r.Category = fn.Some(review.Category(s))
	})

	r.CounterPatchAffectedFiles = fn.None[[]string]()
	optString(cpFiles).WhenSome(func(s string) {
		r.CounterPatchAffectedFiles = fn.Some(decodeFiles(s))
	})

	r.CounterPatchStatus = fn.None[review.CounterPatchStatus]()
	optString(cpStatus).WhenSome(func(s string) {
		r.CounterPatchStatus = fn.Some(review.CounterPatchStatus(s))
	})

	return r, nil
}

// categoryNull converts an optional category to its sql form.
func categoryNull(o fn.Option[review.Category]) sql.NullString {
	var ns sql.NullString
	o.WhenSome(func(c review.Category) {
		ns = sql.NullString{String: string(c), Valid: true}
	})

	return ns
}

// cpStatusNull converts an optional counter-patch status to its sql form.
func cpStatusNull(o fn.Option[review.CounterPatchStatus]) sql.NullString {
	var ns sql.NullString
	o.WhenSome(func(s review.CounterPatchStatus) {
		ns = sql.NullString{String: string(s), Valid: true}
	})

	return ns
}

// cpFilesNull converts an optional file list to its sql form.
func cpFilesNull(o fn.Option[[]string]) sql.NullString {
	var ns sql.NullString
	o.WhenSome(func(files []string) {
		ns = sql.NullString{String: encodeFiles(files), Valid: true}
	})

	return ns
}

// boolToInt stores booleans as sqlite integers.
func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// InsertReview persists a fully-populated new review row.
func (s *SQLStore) InsertReview(ctx context.Context, r Review) error {
	query := `INSERT INTO reviews (` + reviewColumns + `) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		 ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		r.ID, string(r.Status), r.Intent,
		nullString(r.Description), nullString(r.Diff),
		encodeFiles(r.AffectedFiles),
		boolToInt(r.SkipDiffValidation),
		r.AgentType, r.AgentRole, r.Phase,
		nullString(r.Plan), nullString(r.Task), r.Project,
		categoryNull(r.Category), string(r.Priority),
		r.CurrentRound, nullString(r.ClaimedBy), r.ClaimGeneration,
		nullString(r.VerdictReason), nullString(r.CounterPatch),
		cpFilesNull(r.CounterPatchAffectedFiles),
		cpStatusNull(r.CounterPatchStatus),
		msFromTime(r.CreatedAt), msFromTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	return nil
}

// GetReview fetches one review by id.
func (s *SQLStore) GetReview(ctx context.Context, id string) (Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = ?`

	r, err := scanReview(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Review{}, ErrReviewNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("failed to get review: %w", err)
	}

	return r, nil
}

// UpdateReview rewrites every mutable column of the row. Identity, priority
// and created_at are creation-time constants and are deliberately not
// touched.
func (s *SQLStore) UpdateReview(ctx context.Context, r Review) error {
	query := `UPDATE reviews SET
		status = ?, intent = ?, description = ?, diff = ?,
		affected_files = ?, skip_diff_validation = ?,
		current_round = ?, claimed_by = ?, claim_generation = ?,
		verdict_reason = ?, counter_patch = ?,
		counter_patch_affected_files = ?, counter_patch_status = ?,
		updated_at_ms = ?
	WHERE id = ?`

	res, err := s.q.ExecContext(ctx, query,
		string(r.Status), r.Intent,
		nullString(r.Description), nullString(r.Diff),
		encodeFiles(r.AffectedFiles),
		boolToInt(r.SkipDiffValidation),
		r.CurrentRound, nullString(r.ClaimedBy), r.ClaimGeneration,
		nullString(r.VerdictReason), nullString(r.CounterPatch),
		cpFilesNull(r.CounterPatchAffectedFiles),
		cpStatusNull(r.CounterPatchStatus),
		msFromTime(r.UpdatedAt),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrReviewNotFound
	}

	return nil
}

// ClaimPending performs the conditional claim update: it only succeeds if
// the row is still pending. This is the second half of the belt-and-braces
// concurrency story; the broker's write mutex is the first.
func (s *SQLStore) ClaimPending(ctx context.Context, id, reviewerID string,
	now time.Time) (bool, error) {

	query := `UPDATE reviews SET
		status = ?, claimed_by = ?,
		claim_generation = claim_generation + 1,
		updated_at_ms = ?
	WHERE id = ? AND status = ?`

	res, err := s.q.ExecContext(ctx, query,
		string(review.StatusClaimed), reviewerID, msFromTime(now),
		id, string(review.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim review: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n == 1, nil
}

// ListReviews returns reviews matching the filter, ordered by priority tier
// (critical, normal, low; unknown tiers sort with normal) and then by
// creation time ascending.
func (s *SQLStore) ListReviews(ctx context.Context,
	filter ReviewFilter) ([]Review, error) {

	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE 1=1`
	var args []any

	filter.Status.WhenSome(func(st review.Status) {
		query += ` AND status = ?`
		args = append(args, string(st))
	})
	filter.Category.WhenSome(func(c review.Category) {
		query += ` AND category = ?`
		args = append(args, string(c))
	})
	filter.Project.WhenSome(func(p string) {
		query += ` AND project = ?`
		args = append(args, p)
	})

	query += ` ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'low' THEN 2
			ELSE 1
		END ASC, created_at_ms ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w",
				err)
		}
		reviews = append(reviews, r)
	}

	return reviews, rows.Err()
}

// RecentReviews returns the most recently updated reviews matching the
// filter, newest first.
func (s *SQLStore) RecentReviews(ctx context.Context, filter ReviewFilter,
	limit int) ([]Review, error) {

	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE 1=1`
	var args []any

	filter.Status.WhenSome(func(st review.Status) {
		query += ` AND status = ?`
		args = append(args, string(st))
	})
	filter.Category.WhenSome(func(c review.Category) {
		query += ` AND category = ?`
		args = append(args, string(c))
	})
	filter.Project.WhenSome(func(p string) {
		query += ` AND project = ?`
		args = append(args, p)
	})

	query += ` ORDER BY updated_at_ms DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reviews: %w",
			err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w",
				err)
		}
		reviews = append(reviews, r)
	}

	return reviews, rows.Err()
}

// CountByStatus tallies current reviews per status, optionally scoped to a
// project.
func (s *SQLStore) CountByStatus(ctx context.Context,
	project fn.Option[string]) (map[review.Status]int64, error) {

	query := `SELECT status, COUNT(*) FROM reviews`
	var args []any
	project.WhenSome(func(p string) {
		query += ` WHERE project = ?`
		args = append(args, p)
	})
	query += ` GROUP BY status`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[review.Status]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[review.Status(status)] = count
	}

	return counts, rows.Err()
}

// CountByCategory tallies current reviews per category, optionally scoped
// to a project. Reviews without a category are skipped.
func (s *SQLStore) CountByCategory(ctx context.Context,
	project fn.Option[string]) (map[review.Category]int64, error) {

	query := `SELECT category, COUNT(*) FROM reviews
		WHERE category IS NOT NULL`
	var args []any
	project.WhenSome(func(p string) {
		query += ` AND project = ?`
		args = append(args, p)
	})
	query += ` GROUP BY category`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[review.Category]int64)
	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[review.Category(category)] = count
	}

	return counts, rows.Err()
}
