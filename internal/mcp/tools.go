package mcp

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gsdlabs/gsd-review-broker/internal/broker"
	"github.com/gsdlabs/gsd-review-broker/internal/review"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// toolError is embedded in every result struct. Domain failures cross the
// wire as these two fields on an otherwise empty result; Go errors are
// reserved for transport-level problems.
type toolError struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// shapeError splits an error into wire fields. Broker errors become result
// fields; anything else propagates as a Go error.
func shapeError(err error) (toolError, error) {
	var bErr *broker.Error
	if errors.As(err, &bErr) {
		return toolError{
			Error:  string(bErr.Kind),
			Detail: bErr.Detail,
		}, nil
	}

	return toolError{}, err
}

// ReviewResult is the wire form of a review row. Timestamps are ISO-8601
// with millisecond precision, UTC.
type ReviewResult struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	Intent             string   `json:"intent"`
	Description        string   `json:"description,omitempty"`
	Diff               string   `json:"diff,omitempty"`
	AffectedFiles      []string `json:"affected_files"`
	SkipDiffValidation bool     `json:"skip_diff_validation,omitempty"`

	AgentType string `json:"agent_type"`
	AgentRole string `json:"agent_role"`
	Phase     string `json:"phase"`
	Plan      string `json:"plan,omitempty"`
	Task      string `json:"task,omitempty"`
	Project   string `json:"project"`
	Category  string `json:"category,omitempty"`
	Priority  string `json:"priority"`

	CurrentRound    int64  `json:"current_round"`
	ClaimedBy       string `json:"claimed_by,omitempty"`
	ClaimGeneration int64  `json:"claim_generation"`
	VerdictReason   string `json:"verdict_reason,omitempty"`

	CounterPatch              string   `json:"counter_patch,omitempty"`
	CounterPatchAffectedFiles []string `json:"counter_patch_affected_files,omitempty"`
	CounterPatchStatus        string   `json:"counter_patch_status,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func reviewResult(r store.Review) ReviewResult {
	res := ReviewResult{
		ID:                 r.ID,
		Status:             string(r.Status),
		Intent:             r.Intent,
		Description:        r.Description.UnwrapOr(""),
		Diff:               r.Diff.UnwrapOr(""),
		AffectedFiles:      r.AffectedFiles,
		SkipDiffValidation: r.SkipDiffValidation,
		AgentType:          r.AgentType,
		AgentRole:          r.AgentRole,
		Phase:              r.Phase,
		Plan:               r.Plan.UnwrapOr(""),
		Task:               r.Task.UnwrapOr(""),
		Project:            r.Project,
		Priority:           string(r.Priority),
		CurrentRound:       r.CurrentRound,
		ClaimedBy:          r.ClaimedBy.UnwrapOr(""),
		ClaimGeneration:    r.ClaimGeneration,
		VerdictReason:      r.VerdictReason.UnwrapOr(""),
		CounterPatch:       r.CounterPatch.UnwrapOr(""),
		CreatedAt:          broker.FormatTime(r.CreatedAt),
		UpdatedAt:          broker.FormatTime(r.UpdatedAt),
	}

	r.Category.WhenSome(func(c review.Category) {
		res.Category = string(c)
	})
	r.CounterPatchAffectedFiles.WhenSome(func(files []string) {
		res.CounterPatchAffectedFiles = files
	})
	r.CounterPatchStatus.WhenSome(func(s review.CounterPatchStatus) {
		res.CounterPatchStatus = string(s)
	})

	return res
}

// CreateReviewArgs are the arguments for the create_review tool.
type CreateReviewArgs struct {
	Intent      string `json:"intent" jsonschema:"One-line summary of the proposal"`
	AgentType   string `json:"agent_type" jsonschema:"Type of the proposing agent"`
	AgentRole   string `json:"agent_role" jsonschema:"Role of the caller: proposer or reviewer"`
	Phase       string `json:"phase" jsonschema:"Workflow phase the proposal belongs to"`
	Plan        string `json:"plan,omitempty" jsonschema:"Optional plan identifier"`
	Task        string `json:"task,omitempty" jsonschema:"Optional task identifier"`
	Project     string `json:"project,omitempty" jsonschema:"Project label, defaults to the repo root"`
	Category    string `json:"category,omitempty" jsonschema:"One of plan_review, code_change, verification, handoff"`
	Description string `json:"description,omitempty" jsonschema:"Full proposal body"`
	Diff        string `json:"diff,omitempty" jsonschema:"Unified diff of the proposed change"`

	ReviewID           string `json:"review_id,omitempty" jsonschema:"Existing review id to revise"`
	SkipDiffValidation bool   `json:"skip_diff_validation,omitempty" jsonschema:"Store the diff without dry-run validation"`
}

// CreateReviewResult is the result of the create_review tool.
type CreateReviewResult struct {
	toolError

	ReviewID     string `json:"review_id,omitempty"`
	Status       string `json:"status,omitempty"`
	CurrentRound int64  `json:"current_round,omitempty"`
	Priority     string `json:"priority,omitempty"`
}

func (s *Server) handleCreateReview(ctx context.Context,
	req *mcp.CallToolRequest,
	args CreateReviewArgs) (*mcp.CallToolResult, CreateReviewResult, error) {

	res, err := s.svc.CreateReview(ctx, broker.CreateReviewParams{
		Intent:             args.Intent,
		AgentType:          args.AgentType,
		AgentRole:          args.AgentRole,
		Phase:              args.Phase,
		Plan:               args.Plan,
		Task:               args.Task,
		Project:            args.Project,
		Category:           args.Category,
		Description:        args.Description,
		Diff:               args.Diff,
		ReviewID:           args.ReviewID,
		SkipDiffValidation: args.SkipDiffValidation,
	})
	if err != nil {
		te, err := shapeError(err)
		return nil, CreateReviewResult{toolError: te}, err
	}

	return nil, CreateReviewResult{
		ReviewID:     res.ReviewID,
		Status:       string(res.Status),
		CurrentRound: res.CurrentRound,
		Priority:     string(res.Priority),
	}, nil
}

// ListReviewsArgs are the arguments for the list_reviews tool.
type ListReviewsArgs struct {
	Status   string `json:"status,omitempty" jsonschema:"Filter by status"`
	Category string `json:"category,omitempty" jsonschema:"Filter by category"`
	Project  string `json:"project,omitempty" jsonschema:"Filter by project"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"Long-poll until a matching review appears"`
}

// ListReviewsResult is the result of the list_reviews tool.
type ListReviewsResult struct {
	toolError

	Count   int            `json:"count"`
	Reviews []ReviewResult `json:"reviews"`
}

func (s *Server) handleListReviews(ctx context.Context,
	req *mcp.CallToolRequest,
	args ListReviewsArgs) (*mcp.CallToolResult, ListReviewsResult, error) {

	reviews, err := s.svc.ListReviews(ctx, broker.ListReviewsParams{
		Status:   args.Status,
		Category: args.Category,
		Project:  args.Project,
		Wait:     args.Wait,
	})
	if err != nil {
		te, err := shapeError(err)
		return nil, ListReviewsResult{toolError: te}, err
	}

	out := make([]ReviewResult, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewResult(r))
	}

	return nil, ListReviewsResult{Count: len(out), Reviews: out}, nil
}

// GetReviewStatusArgs are the arguments for the get_review_status tool.
type GetReviewStatusArgs struct {
	ReviewID string `json:"review_id" jsonschema:"ID of the review"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"Long-poll for the next state change before reading"`
	CallerID string `json:"caller_id,omitempty" jsonschema:"Optional caller identifier for logging"`
}

// GetReviewResult wraps a single review row.
type GetReviewResult struct {
	toolError

	Review *ReviewResult `json:"review,omitempty"`
}

func (s *Server) handleGetReviewStatus(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetReviewStatusArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.svc.GetReviewStatus(ctx, args.ReviewID, args.Wait)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetReviewResult{toolError: te}, err
	}

	res := reviewResult(r)

	return nil, GetReviewResult{Review: &res}, nil
}

// ClaimReviewArgs are the arguments for the claim_review tool.
type ClaimReviewArgs struct {
	ReviewID   string `json:"review_id" jsonschema:"ID of the pending review"`
	ReviewerID string `json:"reviewer_id" jsonschema:"Identifier of the claiming reviewer"`
}

// ClaimReviewResult is the result of the claim_review tool.
type ClaimReviewResult struct {
	toolError

	ReviewID        string `json:"review_id,omitempty"`
	Status          string `json:"status,omitempty"`
	ClaimGeneration int64  `json:"claim_generation,omitempty"`
}

func (s *Server) handleClaimReview(ctx context.Context,
	req *mcp.CallToolRequest,
	args ClaimReviewArgs) (*mcp.CallToolResult, ClaimReviewResult, error) {

	res, err := s.svc.ClaimReview(ctx, args.ReviewID, args.ReviewerID)
	if err != nil {
		te, err := shapeError(err)
		return nil, ClaimReviewResult{toolError: te}, err
	}

	return nil, ClaimReviewResult{
		ReviewID:        res.ReviewID,
		Status:          string(res.Status),
		ClaimGeneration: res.ClaimGeneration,
	}, nil
}

// SubmitVerdictArgs are the arguments for the submit_verdict tool.
type SubmitVerdictArgs struct {
	ReviewID        string `json:"review_id" jsonschema:"ID of the claimed review"`
	Verdict         string `json:"verdict" jsonschema:"One of approved, changes_requested, comment"`
	Notes           string `json:"notes,omitempty" jsonschema:"Verdict rationale, required unless approved"`
	CounterPatch    string `json:"counter_patch,omitempty" jsonschema:"Alternative unified diff, not allowed with approved"`
	ClaimGeneration int64  `json:"claim_generation" jsonschema:"Token returned by claim_review"`
}

// SubmitVerdictResult is the result of the submit_verdict tool.
type SubmitVerdictResult struct {
	toolError

	ReviewID           string `json:"review_id,omitempty"`
	Status             string `json:"status,omitempty"`
	CounterPatchStatus string `json:"counter_patch_status,omitempty"`
}

func (s *Server) handleSubmitVerdict(ctx context.Context,
	req *mcp.CallToolRequest,
	args SubmitVerdictArgs) (*mcp.CallToolResult, SubmitVerdictResult, error) {

	res, err := s.svc.SubmitVerdict(ctx, broker.SubmitVerdictParams{
		ReviewID:        args.ReviewID,
		Verdict:         args.Verdict,
		Notes:           args.Notes,
		CounterPatch:    args.CounterPatch,
		ClaimGeneration: args.ClaimGeneration,
	})
	if err != nil {
		te, err := shapeError(err)
		return nil, SubmitVerdictResult{toolError: te}, err
	}

	out := SubmitVerdictResult{
		ReviewID: res.ReviewID,
		Status:   string(res.Status),
	}
	res.CounterPatchStatus.WhenSome(
		func(s review.CounterPatchStatus) {
			out.CounterPatchStatus = string(s)
		})

	return nil, out, nil
}

// CounterPatchArgs identify the review whose counter-patch is resolved.
type CounterPatchArgs struct {
	ReviewID string `json:"review_id" jsonschema:"ID of the review with a pending counter-patch"`
}

func (s *Server) handleAcceptCounterPatch(ctx context.Context,
	req *mcp.CallToolRequest,
	args CounterPatchArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.svc.AcceptCounterPatch(ctx, args.ReviewID)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetReviewResult{toolError: te}, err
	}

	res := reviewResult(r)

	return nil, GetReviewResult{Review: &res}, nil
}

func (s *Server) handleRejectCounterPatch(ctx context.Context,
	req *mcp.CallToolRequest,
	args CounterPatchArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.svc.RejectCounterPatch(ctx, args.ReviewID)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetReviewResult{toolError: te}, err
	}

	res := reviewResult(r)

	return nil, GetReviewResult{Review: &res}, nil
}

// CloseReviewArgs are the arguments for the close_review tool.
type CloseReviewArgs struct {
	ReviewID   string `json:"review_id" jsonschema:"ID of the review to close"`
	CloserRole string `json:"closer_role,omitempty" jsonschema:"Role performing the close, defaults to proposer"`
}

func (s *Server) handleCloseReview(ctx context.Context,
	req *mcp.CallToolRequest,
	args CloseReviewArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.svc.CloseReview(ctx, args.ReviewID, args.CloserRole)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetReviewResult{toolError: te}, err
	}

	res := reviewResult(r)

	return nil, GetReviewResult{Review: &res}, nil
}

// AddMessageArgs are the arguments for the add_message tool.
type AddMessageArgs struct {
	ReviewID   string `json:"review_id" jsonschema:"ID of the review under discussion"`
	SenderRole string `json:"sender_role" jsonschema:"proposer or reviewer"`
	Body       string `json:"body" jsonschema:"Message text"`
	Metadata   string `json:"metadata,omitempty" jsonschema:"Opaque JSON attached to the message"`
}

// AddMessageResult is the result of the add_message tool.
type AddMessageResult struct {
	toolError

	MessageID int64 `json:"message_id,omitempty"`
	Round     int64 `json:"round,omitempty"`
}

func (s *Server) handleAddMessage(ctx context.Context,
	req *mcp.CallToolRequest,
	args AddMessageArgs) (*mcp.CallToolResult, AddMessageResult, error) {

	msg, err := s.svc.AddMessage(ctx, broker.AddMessageParams{
		ReviewID:   args.ReviewID,
		SenderRole: args.SenderRole,
		Body:       args.Body,
		Metadata:   args.Metadata,
	})
	if err != nil {
		te, err := shapeError(err)
		return nil, AddMessageResult{toolError: te}, err
	}

	return nil, AddMessageResult{
		MessageID: msg.ID,
		Round:     msg.Round,
	}, nil
}

// GetDiscussionArgs are the arguments for the get_discussion tool.
type GetDiscussionArgs struct {
	ReviewID string `json:"review_id" jsonschema:"ID of the review"`
	Round    int64  `json:"round,omitempty" jsonschema:"Restrict to one round"`
}

// MessageResult is the wire form of a discussion message.
type MessageResult struct {
	ID                int64  `json:"id"`
	SenderRole        string `json:"sender_role"`
	Round             int64  `json:"round"`
	Body              string `json:"body"`
	Metadata          any    `json:"metadata"`
	MalformedMetadata bool   `json:"malformed_metadata,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// GetDiscussionResult is the result of the get_discussion tool.
type GetDiscussionResult struct {
	toolError

	Count    int             `json:"count"`
	Messages []MessageResult `json:"messages"`
}

func (s *Server) handleGetDiscussion(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetDiscussionArgs) (*mcp.CallToolResult, GetDiscussionResult, error) {

	round := fn.None[int64]()
	if args.Round > 0 {
		round = fn.Some(args.Round)
	}

	msgs, err := s.svc.GetDiscussion(ctx, args.ReviewID, round)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetDiscussionResult{toolError: te}, err
	}

	out := make([]MessageResult, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResult{
			ID:                m.ID,
			SenderRole:        string(m.SenderRole),
			Round:             m.Round,
			Body:              m.Body,
			Metadata:          m.Metadata,
			MalformedMetadata: m.MalformedMetadata,
			CreatedAt:         m.CreatedAt,
		})
	}

	return nil, GetDiscussionResult{
		Count:    len(out),
		Messages: out,
	}, nil
}

// GetProposalArgs are the arguments for the get_proposal tool.
type GetProposalArgs struct {
	ReviewID string `json:"review_id" jsonschema:"ID of the review"`
}

func (s *Server) handleGetProposal(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetProposalArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.svc.GetProposal(ctx, args.ReviewID)
	if err != nil {
		te, err := shapeError(err)
		return nil, GetReviewResult{toolError: te}, err
	}

	res := reviewResult(r)

	return nil, GetReviewResult{Review: &res}, nil
}

// ActivityFeedArgs are the arguments for the get_activity_feed tool.
type ActivityFeedArgs struct {
	Status   string `json:"status,omitempty" jsonschema:"Filter by status"`
	Category string `json:"category,omitempty" jsonschema:"Filter by category"`
	Project  string `json:"project,omitempty" jsonschema:"Filter by project"`
}

// FeedEntryResult is one activity feed row.
type FeedEntryResult struct {
	Review             ReviewResult `json:"review"`
	MessageCount       int64        `json:"message_count"`
	LastMessagePreview string       `json:"last_message_preview,omitempty"`
	LastMessageRole    string       `json:"last_message_role,omitempty"`
}

// ActivityFeedResult is the result of the get_activity_feed tool.
type ActivityFeedResult struct {
	toolError

	Entries []FeedEntryResult `json:"entries"`
}

func (s *Server) handleActivityFeed(ctx context.Context,
	req *mcp.CallToolRequest,
	args ActivityFeedArgs) (*mcp.CallToolResult, ActivityFeedResult, error) {

	feed, err := s.svc.ActivityFeed(ctx, broker.ListReviewsParams{
		Status:   args.Status,
		Category: args.Category,
		Project:  args.Project,
	})
	if err != nil {
		te, err := shapeError(err)
		return nil, ActivityFeedResult{toolError: te}, err
	}

	entries := make([]FeedEntryResult, 0, len(feed))
	for _, e := range feed {
		entry := FeedEntryResult{
			Review:       reviewResult(e.Review),
			MessageCount: e.MessageCount,
		}
		e.LastMessage.WhenSome(func(m store.Message) {
			entry.LastMessagePreview = previewBody(m.Body)
			entry.LastMessageRole = string(m.SenderRole)
		})

		entries = append(entries, entry)
	}

	return nil, ActivityFeedResult{Entries: entries}, nil
}

// previewLen caps last-message previews in the activity feed.
const previewLen = 120

func previewBody(body string) string {
	if len(body) <= previewLen {
		return body
	}

	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	return body[:cut] + "..."
}

// AuditLogArgs are the arguments for the get_audit_log tool.
type AuditLogArgs struct {
	ReviewID string `json:"review_id,omitempty" jsonschema:"Restrict to one review"`
}

// AuditEventResult is the wire form of one audit event.
type AuditEventResult struct {
	ID        int64  `json:"id"`
	ReviewID  string `json:"review_id"`
	EventType string `json:"event_type"`
	Actor     string `json:"actor"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AuditLogResult is the result of the get_audit_log and
// get_review_timeline tools.
type AuditLogResult struct {
	toolError

	Count  int                `json:"count"`
	Events []AuditEventResult `json:"events"`
}

func auditEvents(events []store.AuditEvent) []AuditEventResult {
	out := make([]AuditEventResult, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResult{
			ID:        e.ID,
			ReviewID:  e.ReviewID,
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Metadata:  e.Metadata.UnwrapOr(""),
			CreatedAt: broker.FormatTime(e.CreatedAt),
		})
	}

	return out
}

func (s *Server) handleAuditLog(ctx context.Context,
	req *mcp.CallToolRequest,
	args AuditLogArgs) (*mcp.CallToolResult, AuditLogResult, error) {

	reviewID := fn.None[string]()
	if args.ReviewID != "" {
		reviewID = fn.Some(args.ReviewID)
	}

	events, err := s.svc.AuditLog(ctx, reviewID)
	if err != nil {
		te, err := shapeError(err)
		return nil, AuditLogResult{toolError: te}, err
	}

	out := auditEvents(events)

	return nil, AuditLogResult{Count: len(out), Events: out}, nil
}

// TimelineArgs are the arguments for the get_review_timeline tool.
type TimelineArgs struct {
	ReviewID string `json:"review_id" jsonschema:"ID of the review"`
}

func (s *Server) handleTimeline(ctx context.Context,
	req *mcp.CallToolRequest,
	args TimelineArgs) (*mcp.CallToolResult, AuditLogResult, error) {

	events, err := s.svc.Timeline(ctx, args.ReviewID)
	if err != nil {
		te, err := shapeError(err)
		return nil, AuditLogResult{toolError: te}, err
	}

	out := auditEvents(events)

	return nil, AuditLogResult{Count: len(out), Events: out}, nil
}

// StatsArgs are the arguments for the get_review_stats tool.
type StatsArgs struct {
	Project string `json:"project,omitempty" jsonschema:"Restrict to one project"`
}

// StatsResult is the result of the get_review_stats tool. Durations are
// reported in milliseconds.
type StatsResult struct {
	toolError

	CountsByStatus     map[string]int64 `json:"counts_by_status"`
	CountsByCategory   map[string]int64 `json:"counts_by_category"`
	TotalVerdicts      int64            `json:"total_verdicts"`
	ApprovalRate       float64          `json:"approval_rate"`
	AvgTimeToVerdictMs int64            `json:"avg_time_to_verdict_ms"`
	AvgTimeInStateMs   map[string]int64 `json:"avg_time_in_state_ms"`
}

func (s *Server) handleStats(ctx context.Context,
	req *mcp.CallToolRequest,
	args StatsArgs) (*mcp.CallToolResult, StatsResult, error) {

	project := fn.None[string]()
	if args.Project != "" {
		project = fn.Some(args.Project)
	}

	stats, err := s.svc.Stats(ctx, project)
	if err != nil {
		te, err := shapeError(err)
		return nil, StatsResult{toolError: te}, err
	}

	out := StatsResult{
		CountsByStatus:     make(map[string]int64),
		CountsByCategory:   make(map[string]int64),
		TotalVerdicts:      stats.TotalVerdicts,
		ApprovalRate:       stats.ApprovalRate,
		AvgTimeToVerdictMs: stats.AvgTimeToVerdict.Milliseconds(),
		AvgTimeInStateMs:   make(map[string]int64),
	}
	for st, n := range stats.CountsByStatus {
		out.CountsByStatus[string(st)] = n
	}
	for c, n := range stats.CountsByCategory {
		out.CountsByCategory[string(c)] = n
	}
	for st, d := range stats.AvgTimeInState {
		out.AvgTimeInStateMs[string(st)] = d.Milliseconds()
	}

	return nil, out, nil
}

// InfoArgs are the arguments for the get_broker_info tool.
type InfoArgs struct{}

// InfoResult is the result of the get_broker_info tool.
type InfoResult struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	RepoRoot      string `json:"repo_root"`
	DatabasePath  string `json:"database_path"`
	StartedAt     string `json:"started_at"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleInfo(ctx context.Context,
	req *mcp.CallToolRequest,
	args InfoArgs) (*mcp.CallToolResult, InfoResult, error) {

	info := s.svc.Info(ctx)

	return nil, InfoResult{
		Name:          info.Name,
		Version:       info.Version,
		RepoRoot:      info.RepoRoot,
		DatabasePath:  info.DatabasePath,
		StartedAt:     info.StartedAt,
		UptimeSeconds: int64(info.Uptime.Seconds()),
	}, nil
}
