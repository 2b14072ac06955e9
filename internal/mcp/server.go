// Package mcp exposes review operations as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/p4review/internal/activity"
	"github.com/roasbeef/p4review/internal/build"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/versiondiff"
)

// Server wraps the MCP server with the review service dependencies.
type Server struct {
	server   *mcp.Server
	reviews  *review.Service
	diffs    *versiondiff.Engine
	activity *activity.Service
	queue    *queue.Store
	log      *slog.Logger
}

// Config holds configuration for the MCP server.
type Config struct {
	Reviews *review.Service

	// Diffs, Activity and Queue are optional. Their tools are left out
	// when nil.
	Diffs    *versiondiff.Engine
	Activity *activity.Service
	Queue    *queue.Store

	Log *slog.Logger
}

// NewServer creates a new MCP server with the review tools registered.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "p4review",
			Version: build.Version(),
		}, nil),
		reviews:  cfg.Reviews,
		diffs:    cfg.Diffs,
		activity: cfg.Activity,
		queue:    cfg.Queue,
		log:      log.With("component", "mcp"),
	}
	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_reviews",
		Description: "List reviews, newest first",
	}, s.handleListReviews)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_review",
		Description: "Fetch a review with the transitions open to a user",
	}, s.handleGetReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "request_review",
		Description: "Start a review for a change, or add it to a review",
	}, s.handleRequestReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "transition_review",
		Description: "Move a review to a new state",
	}, s.handleTransition)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vote_review",
		Description: "Vote up, down, or clear a vote on a review",
	}, s.handleVote)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "mark_file_read",
		Description: "Mark a file of a review version read or unread",
	}, s.handleMarkRead)

	if s.diffs != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "diff_review",
			Description: "List the files that differ between two review versions",
		}, s.handleDiff)
	}

	if s.activity != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "review_activity",
			Description: "List the activity stream of a review",
		}, s.handleActivity)
	}

	if s.queue != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "queue_status",
			Description: "Report task queue counts",
		}, s.handleQueueStatus)
	}
}
