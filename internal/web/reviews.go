package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/spec"
)

// reviewSummary is one row of the review list.
type reviewSummary struct {
	ID           int64  `json:"id"`
	Author       string `json:"author"`
	UpVotes      int    `json:"upVotes"`
	DownVotes    int    `json:"downVotes"`
	Description  string `json:"description"`
	State        string `json:"state"`
	TestStatus   string `json:"testStatus"`
	CreateDate   string `json:"createDate"`
	Comments     [2]int `json:"comments"`
	AuthorAvatar string `json:"authorAvatar"`
}

func (s *Server) summarize(ctx context.Context,
	r *review.Review) reviewSummary {

	up, down := r.VoteCounts()

	return reviewSummary{
		ID:           r.ID,
		Author:       r.Author,
		UpVotes:      up,
		DownVotes:    down,
		Description:  firstLineHTML(r.Description),
		State:        string(r.State),
		TestStatus:   r.TestStatus,
		CreateDate:   r.Created.UTC().Format(time.RFC3339),
		AuthorAvatar: s.avatars.URL(ctx, r.Author),
	}
}

// reviewView is a full review as returned to clients. The callback token
// is never included.
type reviewView struct {
	*review.Review

	Token       string            `json:"token,omitempty"`
	Transitions map[string]string `json:"transitions,omitempty"`
}

func (s *Server) view(ctx context.Context, r *review.Review,
	user string) (reviewView, error) {

	shown := *r
	shown.Participants = r.ParticipantsData()

	v := reviewView{Review: &shown}
	if user == "" {
		return v, nil
	}

	ts, err := s.cfg.Reviews.TransitionsFor(ctx, r, user)
	if err != nil {
		return v, err
	}
	v.Transitions = review.TransitionMap(ts)

	return v, nil
}

func reviewID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, spec.NewValidationError(spec.InvalidFormat, "id",
			fmt.Sprintf("%q is not a review id.", r.PathValue("id")))
	}

	return id, nil
}

// handleReviews handles GET /reviews.
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := review.ListOptions{
		State:  review.State(q.Get("state")),
		Author: q.Get("author"),
	}
	if m := q.Get("max"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n < 0 {
			badRequest(w, "max", "max must be a non-negative number.")
			return
		}
		opts.Max = n
	}
	if opts.State != "" && !opts.State.Valid() {
		badRequest(w, "state", fmt.Sprintf("%q is not a review state.",
			opts.State))
		return
	}

	reviews, err := s.cfg.Reviews.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]reviewSummary, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, s.summarize(r.Context(), rv))
	}

	writeJSON(w, http.StatusOK, map[string]any{"reviews": out})
}

// handleReview handles GET /reviews/{id}.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rv, err := s.cfg.Reviews.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := s.view(r.Context(), rv, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"review": v})
}

type addRequest struct {
	Change      int64    `json:"change"`
	ID          int64    `json:"id"`
	Description string   `json:"description"`
	Reviewers   []string `json:"reviewers"`
}

// handleAddReview handles POST /reviews/add.
func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req addRequest
	isJSON, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !isJSON {
		req.Description = r.PostFormValue("description")
		req.Reviewers = formList(r, "reviewers")
		req.Change, _ = strconv.ParseInt(r.PostFormValue("change"), 10,
			64)
		req.ID, _ = strconv.ParseInt(r.PostFormValue("id"), 10, 64)
	}

	rv, err := s.cfg.Reviews.Add(r.Context(), review.AddRequest{
		Change:      req.Change,
		ID:          req.ID,
		Description: req.Description,
		Reviewers:   req.Reviewers,
		User:        user,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := s.view(r.Context(), rv, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid": true,
		"id":      rv.ID,
		"review":  v,
	})
}

// handleTransition handles POST /reviews/{id}/transition.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		State string `json:"state"`
	}
	isJSON, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !isJSON {
		req.State = r.PostFormValue("state")
	}

	rv, err := s.cfg.Reviews.Transition(
		r.Context(), id, user, review.State(req.State),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := s.view(r.Context(), rv, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid": true,
		"review":  v,
	})
}

// handleVote handles POST /reviews/{id}/vote/{up|down|clear}.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var value int
	switch r.PathValue("dir") {
	case "up":
		value = 1
	case "down":
		value = -1
	case "clear":
		value = 0
	default:
		badRequest(w, "vote", "Vote must be up, down or clear.")
		return
	}

	var req struct {
		Version int `json:"version"`
	}
	isJSON, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !isJSON && r.PostFormValue("version") != "" {
		req.Version, err = strconv.Atoi(r.PostFormValue("version"))
		if err != nil {
			badRequest(w, "version", "Version must be a number.")
			return
		}
	}

	rv, err := s.cfg.Reviews.Vote(r.Context(), id, user, value,
		req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	up, down := rv.VoteCounts()
	writeJSON(w, http.StatusOK, map[string]any{
		"isValid":      true,
		"upVotes":      up,
		"downVotes":    down,
		"participants": rv.ParticipantsData(),
	})
}

// handleReviewers handles POST /reviews/{id}/reviewers.
func (s *Server) handleReviewers(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Participants map[string]review.Participant `json:"participants"`
	}
	isJSON, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !isJSON {
		req.Participants = make(map[string]review.Participant)
		for _, u := range formList(r, "reviewers") {
			req.Participants[u] = review.Participant{}
		}
		for _, u := range formList(r, "requiredReviewers") {
			req.Participants[u] = review.Participant{Required: true}
		}
	}

	rv, err := s.cfg.Reviews.SetParticipants(r.Context(), id, user,
		req.Participants)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid":      true,
		"participants": rv.ParticipantsData(),
	})
}

// handleReviewSection handles the test and deploy callbacks and the file
// read state endpoint.
func (s *Server) handleReviewSection(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	rest := r.PathValue("rest")

	switch {
	case section == "tests" || section == "deploy":
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStatusCallback(w, r, section, rest)

	case strings.HasPrefix(section, "v") && strings.HasPrefix(rest, "files/"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		version, err := strconv.Atoi(section[1:])
		if err != nil || version < 1 {
			s.writeError(w, r, fmt.Errorf("%s: %w", section,
				review.ErrNoVersion))
			return
		}
		depotFile := "//" + strings.TrimLeft(
			strings.TrimPrefix(rest, "files/"), "/",
		)
		s.handleReadState(w, r, version, depotFile)

	default:
		writeJSON(w, http.StatusNotFound, invalidResponse{
			Error: "not found",
		})
	}
}

// handleStatusCallback records a test or deploy result. rest is
// "{status}/{token}".
func (s *Server) handleStatusCallback(w http.ResponseWriter,
	r *http.Request, kind, rest string) {

	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status, token, _ := strings.Cut(rest, "/")
	if token == "" || strings.Contains(token, "/") {
		writeJSON(w, http.StatusForbidden, invalidResponse{
			Error: "invalid token",
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		badRequest(w, "body", "Unable to parse parameters.")
		return
	}
	details := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		details[k] = strings.Join(v, ",")
	}

	if kind == "tests" {
		_, err = s.cfg.Reviews.SetTestStatus(r.Context(), id, token,
			status, details)
	} else {
		_, err = s.cfg.Reviews.SetDeployStatus(r.Context(), id, token,
			status, details)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"isValid": true})
}

// parseRead accepts 0, 1, true and false, bare or quoted.
func parseRead(raw string) (bool, bool) {
	switch strings.Trim(strings.TrimSpace(raw), `"`) {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	default:
		return false, false
	}
}

// handleReadState marks a file of a review version read or unread.
func (s *Server) handleReadState(w http.ResponseWriter, r *http.Request,
	version int, depotFile string) {

	id, err := reviewID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		User string          `json:"user"`
		Read json.RawMessage `json:"read"`
	}
	isJSON, err := decodeBody(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rawRead := string(req.Read)
	if !isJSON {
		req.User = r.PostFormValue("user")
		rawRead = r.PostFormValue("read")
	}

	who := caller(r)
	if req.User == "" || (who != "" && req.User != who) {
		badRequest(w, "user", "Not logged in as the given user.")
		return
	}
	read, ok := parseRead(rawRead)
	if !ok {
		badRequest(w, "read", "Read must be 0 or 1.")
		return
	}

	fi, err := s.cfg.Reviews.ToggleRead(r.Context(), id, version,
		depotFile, req.User, read)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if fi.ReadBy == nil {
		fi.ReadBy = map[string]review.ReadMark{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isValid": true,
		"readBy":  fi.ReadBy,
	})
}

// formList returns the values of a repeated form field, accepting both
// "name" and "name[]".
func formList(r *http.Request, name string) []string {
	var out []string
	for _, key := range []string{name, name + "[]"} {
		for _, v := range r.PostForm[key] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}

	return out
}
