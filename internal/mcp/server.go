// Package mcp exposes the broker verbs as MCP tools. Handlers here only
// translate between wire structs and the broker service; every rule lives in
// the broker package.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gsdlabs/gsd-review-broker/internal/broker"
)

// Server wraps the MCP server around the broker service.
type Server struct {
	server *mcp.Server
	svc    *broker.Service
}

// NewServer creates an MCP server with all review tools registered.
func NewServer(svc *broker.Service, version string) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "gsd-review-broker",
		Version: version,
	}, nil)

	s := &Server{
		server: mcpServer,
		svc:    svc,
	}
	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// MCP returns the underlying server, used by the HTTP host to mount the
// streamable transport.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// registerTools registers the full review verb surface.
func (s *Server) registerTools() {
	// Proposal lifecycle.
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "create_review",
		Description: "Open a new review, or revise an existing one " +
			"by passing its review_id while it is in " +
			"changes_requested",
	}, s.handleCreateReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "list_reviews",
		Description: "List reviews by priority then age, optionally " +
			"long-polling until one matches",
	}, s.handleListReviews)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_review_status",
		Description: "Fetch one review, optionally long-polling " +
			"for its next state change",
	}, s.handleGetReviewStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "claim_review",
		Description: "Claim a pending review for a reviewer; the " +
			"stored diff is re-validated first",
	}, s.handleClaimReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "submit_verdict",
		Description: "Record an approved, changes_requested or " +
			"comment verdict, optionally with a counter-patch",
	}, s.handleSubmitVerdict)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "accept_counter_patch",
		Description: "Accept the reviewer's counter-patch, swapping " +
			"it in as the proposal diff",
	}, s.handleAcceptCounterPatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reject_counter_patch",
		Description: "Reject and discard the pending counter-patch",
	}, s.handleRejectCounterPatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "close_review",
		Description: "Close a review from any non-terminal state",
	}, s.handleCloseReview)

	// Discussion.
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "add_message",
		Description: "Append a discussion message; proposer and " +
			"reviewer strictly alternate",
	}, s.handleAddMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_discussion",
		Description: "Fetch a review's messages in insertion " +
			"order, optionally for one round",
	}, s.handleGetDiscussion)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_proposal",
		Description: "Fetch a review with its diff, counter-patch " +
			"and affected files",
	}, s.handleGetProposal)

	// Observability.
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_activity_feed",
		Description: "Most recently active reviews with last " +
			"message previews",
	}, s.handleActivityFeed)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_audit_log",
		Description: "Audit events for one review or across the " +
			"whole store",
	}, s.handleAuditLog)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_review_stats",
		Description: "Lifetime counts, approval rate and timing " +
			"metrics",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_review_timeline",
		Description: "Chronological event sequence for one review",
	}, s.handleTimeline)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_broker_info",
		Description: "Version, paths and uptime of this broker",
	}, s.handleInfo)
}
