// Package web serves the broker dashboard: static assets, a JSON overview
// API, and the server-sent-event push channel with heartbeats and log
// tailing.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/broker"
)

// Config holds the web server configuration.
type Config struct {
	// Addr is the listen address, loopback only.
	Addr string

	// StaticDir overrides the embedded dashboard assets when non-empty.
	StaticDir string

	// LogDir is where the JSON-Lines log files the tail endpoint reads
	// live.
	LogDir string
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg Config
	svc *broker.Service
	log *slog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// NewServer wires the dashboard routes.
func NewServer(cfg Config, svc *broker.Service,
	log *slog.Logger) (*Server, error) {

	s := &Server{
		cfg: cfg,
		svc: svc,
		log: log,
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /api/overview", s.handleOverview)
	s.mux.HandleFunc("GET /api/reviews/{id}/preview", s.handlePreview)

	static, err := s.staticHandler()
	if err != nil {
		return nil, err
	}
	s.mux.Handle("GET /", static)

	return s, nil
}

// Handler exposes the route mux so the lifecycle host can mount it next to
// the MCP transport.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the event stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info("Dashboard listening", "addr", s.cfg.Addr)

	return s.srv.ListenAndServe()
}

// Shutdown stops the server, severing open event streams.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}

	return nil
}

// OverviewSnapshot is the compact dashboard state: enough for an idempotent
// re-render, small enough to push on every change.
type OverviewSnapshot struct {
	CountsByStatus map[string]int64 `json:"counts_by_status"`
	Recent         []RecentReview   `json:"recent"`
	GeneratedAt    string           `json:"generated_at"`
}

// RecentReview is one row of the overview's activity list.
type RecentReview struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Intent       string `json:"intent"`
	Priority     string `json:"priority"`
	CurrentRound int64  `json:"current_round"`
	MessageCount int64  `json:"message_count"`
	UpdatedAt    string `json:"updated_at"`
}

func (s *Server) snapshot(ctx context.Context) (OverviewSnapshot, error) {
	stats, err := s.svc.Stats(ctx, fn.None[string]())
	if err != nil {
		return OverviewSnapshot{}, err
	}

	feed, err := s.svc.ActivityFeed(ctx, broker.ListReviewsParams{})
	if err != nil {
		return OverviewSnapshot{}, err
	}

	snap := OverviewSnapshot{
		CountsByStatus: make(map[string]int64),
		Recent:         make([]RecentReview, 0, len(feed)),
		GeneratedAt:    broker.FormatTime(time.Now()),
	}
	for st, n := range stats.CountsByStatus {
		snap.CountsByStatus[string(st)] = n
	}
	for _, e := range feed {
		snap.Recent = append(snap.Recent, RecentReview{
			ID:           e.Review.ID,
			Status:       string(e.Review.Status),
			Intent:       e.Review.Intent,
			Priority:     string(e.Review.Priority),
			CurrentRound: e.Review.CurrentRound,
			MessageCount: e.MessageCount,
			UpdatedAt:    broker.FormatTime(e.Review.UpdatedAt),
		})
	}

	return snap, nil
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}
