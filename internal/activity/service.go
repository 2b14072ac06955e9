// Package activity records and lists the activity stream of reviews and
// changes.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/p4review/internal/store"
)

// DefaultLimit caps list requests that do not set one.
const DefaultLimit = 50

// Entry is one item of the activity stream.
type Entry struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	User        string    `json:"user"`
	Action      string    `json:"action"`
	Target      string    `json:"target"`
	ReviewID    int64     `json:"review,omitempty"`
	Change      int64     `json:"change,omitempty"`
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
}

func entryFromStore(a store.Activity) Entry {
	return Entry{
		ID:          a.ID,
		Type:        a.Type,
		User:        a.User,
		Action:      a.Action,
		Target:      a.Target,
		ReviewID:    a.ReviewID,
		Change:      a.Change,
		Description: a.Description,
		Time:        a.Created,
	}
}

func entriesFromStore(list []store.Activity) []Entry {
	out := make([]Entry, 0, len(list))
	for _, a := range list {
		out = append(out, entryFromStore(a))
	}

	return out
}

// Service records activity entries and answers queries over them.
type Service struct {
	store store.ActivityStore
	log   *slog.Logger
}

// ServiceConfig holds configuration for the activity service.
type ServiceConfig struct {
	// Store is the activity store implementation.
	Store store.ActivityStore

	Log *slog.Logger
}

// NewService creates a new activity service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store: cfg.Store,
		log:   log.With("component", "activity"),
	}
}

// Receive dispatches a request to its handler.
func (s *Service) Receive(ctx context.Context,
	msg Request) fn.Result[Response] {

	switch m := msg.(type) {
	case RecordRequest:
		return fn.Ok[Response](s.handleRecord(ctx, m))

	case ListRecentRequest:
		return fn.Ok[Response](s.handleListRecent(ctx, m))

	case ListByReviewRequest:
		return fn.Ok[Response](s.handleListByReview(ctx, m))

	case CleanupRequest:
		return fn.Ok[Response](s.handleCleanup(ctx, m))

	default:
		return fn.Err[Response](fmt.Errorf(
			"unknown message type: %T", msg,
		))
	}
}

// Record stores one entry.
func (s *Service) Record(ctx context.Context,
	req RecordRequest) (Entry, error) {

	resp := s.handleRecord(ctx, req)
	return resp.Entry, resp.Error
}

// Recent returns the newest entries.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	resp := s.handleListRecent(ctx, ListRecentRequest{Limit: limit})
	return resp.Entries, resp.Error
}

// ForReview returns the entries attached to a review, newest first.
func (s *Service) ForReview(ctx context.Context, reviewID int64,
	limit int) ([]Entry, error) {

	resp := s.handleListByReview(ctx, ListByReviewRequest{
		ReviewID: reviewID,
		Limit:    limit,
	})

	return resp.Entries, resp.Error
}

func (s *Service) handleRecord(ctx context.Context,
	req RecordRequest) RecordResponse {

	a, err := s.store.CreateActivity(ctx, store.CreateActivityParams{
		Type:        req.Type,
		User:        req.User,
		Action:      req.Action,
		Target:      req.Target,
		ReviewID:    req.ReviewID,
		Change:      req.Change,
		Description: req.Description,
	})
	if err != nil {
		return RecordResponse{Error: fmt.Errorf("record activity: %w",
			err)}
	}

	return RecordResponse{Entry: entryFromStore(a)}
}

func (s *Service) handleListRecent(ctx context.Context,
	req ListRecentRequest) ListRecentResponse {

	list, err := s.store.ListRecentActivities(ctx, limitOrDefault(req.Limit))
	if err != nil {
		return ListRecentResponse{Error: err}
	}

	return ListRecentResponse{Entries: entriesFromStore(list)}
}

func (s *Service) handleListByReview(ctx context.Context,
	req ListByReviewRequest) ListByReviewResponse {

	list, err := s.store.ListActivitiesByReview(
		ctx, req.ReviewID, limitOrDefault(req.Limit),
	)
	if err != nil {
		return ListByReviewResponse{Error: err}
	}

	return ListByReviewResponse{Entries: entriesFromStore(list)}
}

func (s *Service) handleCleanup(ctx context.Context,
	req CleanupRequest) CleanupResponse {

	n, err := s.store.DeleteOldActivities(ctx, req.OlderThan)
	if err != nil {
		return CleanupResponse{Error: err}
	}
	if n > 0 {
		s.log.InfoContext(ctx, "Pruned activity entries", "deleted", n)
	}

	return CleanupResponse{Deleted: n}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}

	return limit
}
