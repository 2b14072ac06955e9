package mcp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/p4review/internal/activity"
	"github.com/roasbeef/p4review/internal/db"
	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/store"
	"github.com/roasbeef/p4review/internal/versiondiff"
)

// newTestServer builds a server over in-memory review state with review
// 100 created for pending change 12 by alice.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dbStore, err := db.Open(filepath.Join(t.TempDir(), "mcp.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() {
		dbStore.Close()
	})

	ms := store.NewMockStore()
	client := p4.NewMockClient()
	client.On("change", []string{"-o", "12"}, p4.Record{
		"Change": "12", "Client": "ws", "User": "alice",
		"Status": "pending", "Description": "Tidy up #review",
	})
	client.On("describe", []string{"-s", "-S", "12"}, p4.Record{
		"change":     "12",
		"depotFile0": "//depot/main/a.c", "action0": "add",
		"rev0": "1", "digest0": "ABCD",
	})

	reviews := review.NewService(review.Config{
		Store: ms,
		P4:    client,
		IDs:   review.NewSequenceAllocator(100),
		Log:   log,
	})
	_, err = reviews.ProcessChange(context.Background(), 12, 0, "alice")
	require.NoError(t, err)

	acts := activity.NewService(activity.ServiceConfig{Store: ms})
	_, err = acts.Record(context.Background(), activity.RecordRequest{
		Type: "review", User: "alice", Action: "requested",
		Target: "review 100", ReviewID: 100,
	})
	require.NoError(t, err)

	return NewServer(Config{
		Reviews:  reviews,
		Diffs:    versiondiff.NewEngine(client, log),
		Activity: acts,
		Queue:    queue.NewStore(dbStore, queue.DefaultConfig()),
		Log:      log,
	})
}

// TestNewServer verifies that the tool schemas are accepted.
func TestNewServer(t *testing.T) {
	require.NotNil(t, NewServer(Config{}))
	require.NotNil(t, newTestServer(t))
}

func TestReviewTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, list, err := s.handleListReviews(ctx, nil, ListReviewsArgs{})
	require.NoError(t, err)
	require.Len(t, list.Reviews, 1)
	require.Equal(t, "Tidy up", list.Reviews[0].Description)
	require.Equal(t, []int64{12}, list.Reviews[0].Changes)

	_, got, err := s.handleGetReview(ctx, nil, GetReviewArgs{
		ID: 100, User: "bob",
	})
	require.NoError(t, err)
	require.Equal(t, "Approve", got.Transitions["approved"])
	require.Contains(t, got.Participants, "alice")

	_, sum, err := s.handleVote(ctx, nil, VoteArgs{
		ID: 100, User: "bob", Vote: "up",
	})
	require.NoError(t, err)
	require.Equal(t, 1, sum.UpVotes)

	_, _, err = s.handleVote(ctx, nil, VoteArgs{
		ID: 100, User: "bob", Vote: "sideways",
	})
	require.Error(t, err)

	_, sum, err = s.handleTransition(ctx, nil, TransitionArgs{
		ID: 100, User: "bob", State: "needsRevision",
	})
	require.NoError(t, err)
	require.Equal(t, "needsRevision", sum.State)

	_, _, err = s.handleTransition(ctx, nil, TransitionArgs{
		ID: 100, User: "bob", State: "needsRevision",
	})
	require.ErrorIs(t, err, review.ErrUnauthorized)

	_, read, err := s.handleMarkRead(ctx, nil, MarkReadArgs{
		ID: 100, Version: 1, DepotFile: "//depot/main/a.c",
		User: "bob", Read: true,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]review.ReadMark{
		"bob": {Version: 1, Digest: "ABCD"},
	}, read.ReadBy)

	_, _, err = s.handleGetReview(ctx, nil, GetReviewArgs{ID: 7})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestReviewNeedsUser(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleRequestReview(context.Background(), nil,
		RequestReviewArgs{Change: 12})
	require.Error(t, err)
}

func TestDiffActivityQueueTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, diff, err := s.handleDiff(ctx, nil, DiffArgs{ID: 100})
	require.NoError(t, err)
	require.Len(t, diff.Files, 1)
	require.Equal(t, "add", diff.Files[0].Action)

	_, acts, err := s.handleActivity(ctx, nil, ActivityArgs{ID: 100})
	require.NoError(t, err)
	require.Len(t, acts.Entries, 1)
	require.Equal(t, "requested", acts.Entries[0].Action)

	_, stats, err := s.handleQueueStatus(ctx, nil, QueueStatusArgs{})
	require.NoError(t, err)
	require.Zero(t, stats.Pending)
}
