// Package web serves the review JSON endpoints, the queue trigger endpoints
// and the metrics handler.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roasbeef/p4review/internal/activity"
	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/versiondiff"
)

// UserHeader carries the caller's Perforce user name. Authentication
// happens in front of this server.
const UserHeader = "X-P4-User"

// Config holds configuration for the web server.
type Config struct {
	Addr string

	Reviews  *review.Service
	Diffs    *versiondiff.Engine
	Activity *activity.Service
	Queue    *queue.Store
	Worker   *queue.Worker

	// P4 resolves user emails for avatars. Optional.
	P4 p4.Client

	Log *slog.Logger
}

// Server is the HTTP server.
type Server struct {
	cfg Config
	log *slog.Logger
	mux *http.ServeMux
	srv *http.Server

	avatars *avatarCache
}

// NewServer creates a new web server and registers its routes.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		cfg:     cfg,
		log:     log.With("component", "web"),
		mux:     http.NewServeMux(),
		avatars: newAvatarCache(cfg.P4),
	}
	s.registerRoutes()

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	api := jsonMiddleware

	s.mux.HandleFunc("GET /api/health", api(s.handleHealth))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Reviews.
	s.mux.HandleFunc("GET /reviews", api(s.handleReviews))
	s.mux.HandleFunc("POST /reviews/add", api(s.handleAddReview))
	s.mux.HandleFunc("GET /reviews/{id}", api(s.handleReview))
	s.mux.HandleFunc("POST /reviews/{id}/transition",
		api(s.handleTransition))
	s.mux.HandleFunc("POST /reviews/{id}/vote/{dir}", api(s.handleVote))
	s.mux.HandleFunc("POST /reviews/{id}/reviewers",
		api(s.handleReviewers))
	s.mux.HandleFunc("GET /reviews/{id}/diff", api(s.handleDiff))
	s.mux.HandleFunc("GET /reviews/{id}/activity",
		api(s.handleReviewActivity))

	// Test and deploy callbacks and file read state share a prefix, so
	// they are told apart by the section segment.
	s.mux.HandleFunc("/reviews/{id}/{section}/{rest...}",
		api(s.handleReviewSection))

	s.mux.HandleFunc("GET /activity", api(s.handleActivity))

	// Queue.
	s.mux.HandleFunc("POST /queue/add", api(s.handleQueueAdd))
	s.mux.HandleFunc("/queue/worker", api(s.handleQueueWorker))
	s.mux.HandleFunc("GET /queue/status", api(s.handleQueueStatus))
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("Starting web server", "addr", s.cfg.Addr)

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
