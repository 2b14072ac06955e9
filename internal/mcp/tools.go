package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/p4review/internal/activity"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/versiondiff"
)

// ReviewSummary is a review in tool results.
type ReviewSummary struct {
	ID          int64   `json:"id"`
	Author      string  `json:"author"`
	State       string  `json:"state"`
	Description string  `json:"description"`
	Changes     []int64 `json:"changes"`
	UpVotes     int     `json:"up_votes"`
	DownVotes   int     `json:"down_votes"`
	Versions    int     `json:"versions"`
	TestStatus  string  `json:"test_status,omitempty"`
	Created     string  `json:"created"`
}

func summarize(r *review.Review) ReviewSummary {
	up, down := r.VoteCounts()

	return ReviewSummary{
		ID:          r.ID,
		Author:      r.Author,
		State:       string(r.State),
		Description: r.Description,
		Changes:     r.Changes,
		UpVotes:     up,
		DownVotes:   down,
		Versions:    r.HeadVersion(),
		TestStatus:  r.TestStatus,
		Created:     r.Created.UTC().Format(time.RFC3339),
	}
}

// ListReviewsArgs are the arguments for the list_reviews tool.
type ListReviewsArgs struct {
	State  string `json:"state,omitempty" jsonschema:"Only reviews in this state"`
	Author string `json:"author,omitempty" jsonschema:"Only reviews by this user"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of reviews to return,default=50"`
}

// ListReviewsResult is the result of the list_reviews tool.
type ListReviewsResult struct {
	Reviews []ReviewSummary `json:"reviews"`
}

func (s *Server) handleListReviews(ctx context.Context,
	req *mcp.CallToolRequest, args ListReviewsArgs) (*mcp.CallToolResult, ListReviewsResult, error) {

	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}

	reviews, err := s.reviews.List(ctx, review.ListOptions{
		State:  review.State(args.State),
		Author: args.Author,
		Max:    limit,
	})
	if err != nil {
		return nil, ListReviewsResult{}, err
	}

	out := ListReviewsResult{Reviews: make([]ReviewSummary, 0, len(reviews))}
	for _, r := range reviews {
		out.Reviews = append(out.Reviews, summarize(r))
	}

	return nil, out, nil
}

// GetReviewArgs are the arguments for the get_review tool.
type GetReviewArgs struct {
	ID   int64  `json:"id" jsonschema:"Review ID"`
	User string `json:"user,omitempty" jsonschema:"User whose transitions to list"`
}

// GetReviewResult is the result of the get_review tool.
type GetReviewResult struct {
	Review       ReviewSummary                 `json:"review"`
	Participants map[string]review.Participant `json:"participants"`
	Transitions  map[string]string             `json:"transitions,omitempty"`
}

func (s *Server) handleGetReview(ctx context.Context,
	req *mcp.CallToolRequest, args GetReviewArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	r, err := s.reviews.Get(ctx, args.ID)
	if err != nil {
		return nil, GetReviewResult{}, err
	}

	out := GetReviewResult{
		Review:       summarize(r),
		Participants: r.ParticipantsData(),
	}
	if args.User != "" {
		ts, err := s.reviews.TransitionsFor(ctx, r, args.User)
		if err != nil {
			return nil, GetReviewResult{}, err
		}
		out.Transitions = review.TransitionMap(ts)
	}

	return nil, out, nil
}

// RequestReviewArgs are the arguments for the request_review tool.
type RequestReviewArgs struct {
	User        string   `json:"user" jsonschema:"Owner of the change"`
	Change      int64    `json:"change" jsonschema:"Change number to review"`
	ID          int64    `json:"id,omitempty" jsonschema:"Existing review to add the change to"`
	Description string   `json:"description,omitempty" jsonschema:"Review description, defaults to the change description"`
	Reviewers   []string `json:"reviewers,omitempty" jsonschema:"Users to add as reviewers"`
}

func (s *Server) handleRequestReview(ctx context.Context,
	req *mcp.CallToolRequest, args RequestReviewArgs) (*mcp.CallToolResult, ReviewSummary, error) {

	if args.User == "" {
		return nil, ReviewSummary{}, fmt.Errorf("user is required")
	}

	r, err := s.reviews.Add(ctx, review.AddRequest{
		Change:      args.Change,
		ID:          args.ID,
		Description: args.Description,
		Reviewers:   args.Reviewers,
		User:        args.User,
	})
	if err != nil {
		return nil, ReviewSummary{}, err
	}

	return nil, summarize(r), nil
}

// TransitionArgs are the arguments for the transition_review tool.
type TransitionArgs struct {
	ID    int64  `json:"id" jsonschema:"Review ID"`
	User  string `json:"user" jsonschema:"User applying the transition"`
	State string `json:"state" jsonschema:"Target state, e.g. approved or approved:commit"`
}

func (s *Server) handleTransition(ctx context.Context,
	req *mcp.CallToolRequest, args TransitionArgs) (*mcp.CallToolResult, ReviewSummary, error) {

	r, err := s.reviews.Transition(ctx, args.ID, args.User,
		review.State(args.State))
	if err != nil {
		return nil, ReviewSummary{}, err
	}

	return nil, summarize(r), nil
}

// VoteArgs are the arguments for the vote_review tool.
type VoteArgs struct {
	ID      int64  `json:"id" jsonschema:"Review ID"`
	User    string `json:"user" jsonschema:"Voting user"`
	Vote    string `json:"vote" jsonschema:"up, down or clear"`
	Version int    `json:"version,omitempty" jsonschema:"Version voted on, defaults to the head version"`
}

func (s *Server) handleVote(ctx context.Context,
	req *mcp.CallToolRequest, args VoteArgs) (*mcp.CallToolResult, ReviewSummary, error) {

	var value int
	switch args.Vote {
	case "up":
		value = 1
	case "down":
		value = -1
	case "clear", "":
	default:
		return nil, ReviewSummary{}, fmt.Errorf("unknown vote %q",
			args.Vote)
	}

	r, err := s.reviews.Vote(ctx, args.ID, args.User, value, args.Version)
	if err != nil {
		return nil, ReviewSummary{}, err
	}

	return nil, summarize(r), nil
}

// MarkReadArgs are the arguments for the mark_file_read tool.
type MarkReadArgs struct {
	ID        int64  `json:"id" jsonschema:"Review ID"`
	Version   int    `json:"version" jsonschema:"Review version, counting from 1"`
	DepotFile string `json:"depot_file" jsonschema:"Depot path of the file"`
	User      string `json:"user" jsonschema:"Reading user"`
	Read      bool   `json:"read" jsonschema:"True to mark read, false to mark unread"`
}

// MarkReadResult is the result of the mark_file_read tool.
type MarkReadResult struct {
	ReadBy map[string]review.ReadMark `json:"read_by"`
}

func (s *Server) handleMarkRead(ctx context.Context,
	req *mcp.CallToolRequest, args MarkReadArgs) (*mcp.CallToolResult, MarkReadResult, error) {

	fi, err := s.reviews.ToggleRead(ctx, args.ID, args.Version,
		args.DepotFile, args.User, args.Read)
	if err != nil {
		return nil, MarkReadResult{}, err
	}

	return nil, MarkReadResult{ReadBy: fi.ReadBy}, nil
}

// DiffArgs are the arguments for the diff_review tool.
type DiffArgs struct {
	ID   int64 `json:"id" jsonschema:"Review ID"`
	From int   `json:"from,omitempty" jsonschema:"Left version, 0 for the depot head"`
	To   int   `json:"to,omitempty" jsonschema:"Right version, 0 for the head version"`
}

// DiffResult is the result of the diff_review tool.
type DiffResult struct {
	Files []versiondiff.FileDiff `json:"files"`
}

func (s *Server) handleDiff(ctx context.Context,
	req *mcp.CallToolRequest, args DiffArgs) (*mcp.CallToolResult, DiffResult, error) {

	r, err := s.reviews.Get(ctx, args.ID)
	if err != nil {
		return nil, DiffResult{}, err
	}

	files, err := s.diffs.Between(ctx, r, args.From, args.To)
	if err != nil {
		return nil, DiffResult{}, err
	}
	if files == nil {
		files = []versiondiff.FileDiff{}
	}

	return nil, DiffResult{Files: files}, nil
}

// ActivityArgs are the arguments for the review_activity tool.
type ActivityArgs struct {
	ID    int64 `json:"id" jsonschema:"Review ID"`
	Limit int   `json:"limit,omitempty" jsonschema:"Maximum number of entries,default=50"`
}

// ActivityEntry is one activity entry in tool results.
type ActivityEntry struct {
	User        string `json:"user"`
	Action      string `json:"action"`
	Target      string `json:"target"`
	Change      int64  `json:"change,omitempty"`
	Description string `json:"description,omitempty"`
	Time        string `json:"time"`
}

// ActivityResult is the result of the review_activity tool.
type ActivityResult struct {
	Entries []ActivityEntry `json:"entries"`
}

func (s *Server) handleActivity(ctx context.Context,
	req *mcp.CallToolRequest, args ActivityArgs) (*mcp.CallToolResult, ActivityResult, error) {

	resp, err := s.activity.Receive(ctx, activity.ListByReviewRequest{
		ReviewID: args.ID,
		Limit:    args.Limit,
	}).Unpack()
	if err != nil {
		return nil, ActivityResult{}, err
	}

	list, ok := resp.(activity.ListByReviewResponse)
	if !ok {
		return nil, ActivityResult{}, fmt.Errorf("unexpected response %T",
			resp)
	}
	if list.Error != nil {
		return nil, ActivityResult{}, list.Error
	}

	out := ActivityResult{Entries: make([]ActivityEntry, 0, len(list.Entries))}
	for _, e := range list.Entries {
		out.Entries = append(out.Entries, ActivityEntry{
			User:        e.User,
			Action:      e.Action,
			Target:      e.Target,
			Change:      e.Change,
			Description: e.Description,
			Time:        e.Time.UTC().Format(time.RFC3339),
		})
	}

	return nil, out, nil
}

// QueueStatusArgs are the arguments for the queue_status tool.
type QueueStatusArgs struct{}

// QueueStatusResult is the result of the queue_status tool.
type QueueStatusResult struct {
	Pending       int64  `json:"pending"`
	Running       int64  `json:"running"`
	Done          int64  `json:"done"`
	Failed        int64  `json:"failed"`
	OldestPending string `json:"oldest_pending,omitempty"`
}

func (s *Server) handleQueueStatus(ctx context.Context,
	req *mcp.CallToolRequest, args QueueStatusArgs) (*mcp.CallToolResult, QueueStatusResult, error) {

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, QueueStatusResult{}, err
	}

	out := QueueStatusResult{
		Pending: stats.Pending,
		Running: stats.Running,
		Done:    stats.Done,
		Failed:  stats.Failed,
	}
	if stats.OldestPending != nil {
		out.OldestPending = stats.OldestPending.UTC().Format(time.RFC3339)
	}

	return nil, out, nil
}
