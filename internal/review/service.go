package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/project"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/spec"
	"github.com/roasbeef/p4review/internal/store"
)

// maxSaveAttempts bounds the read-modify-write loop when concurrent
// writers keep bumping a review's revision.
const maxSaveAttempts = 3

// Enqueuer queues follow-up work. *queue.Store satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ queue.TaskType, subject string,
		payload any) (queue.Task, error)
}

// Config holds the dependencies of a Service.
type Config struct {
	Store store.Storage
	P4    p4.Client
	IDs   IDAllocator

	// Queue receives review and commit tasks. Optional.
	Queue Enqueuer

	// CallbackURL is the externally reachable base of the HTTP API. When
	// set, review tasks carry the test and deploy callback URLs.
	CallbackURL string

	DisableCommit      bool
	DisableSelfApprove bool

	Log *slog.Logger
	Now func() time.Time
}

// Service owns the review lifecycle: creating reviews from changes,
// tracking versions, votes and read state, and applying transitions.
type Service struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

// NewService creates a review service.
func NewService(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		cfg: cfg,
		log: log.With("component", "review"),
		now: now,
	}
}

// Get loads a review.
func (s *Service) Get(ctx context.Context, id int64) (*Review, error) {
	rec, err := s.cfg.Store.GetReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("review %d: %w", id, err)
	}

	return fromRecord(rec)
}

// ListOptions filters List.
type ListOptions struct {
	State  State
	Author string
	Max    int
}

// List returns reviews newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Review,
	error) {

	recs, err := s.cfg.Store.ListReviews(ctx, store.ReviewFilter{
		State:  string(opts.State),
		Author: opts.Author,
		Limit:  opts.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	out := make([]*Review, 0, len(recs))
	for _, rec := range recs {
		r, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

// CreateOptions tune CreateFromChange.
type CreateOptions struct {
	// User is acting on the change. Defaults to the change owner.
	User string

	// Description replaces the change description when set.
	Description string

	Reviewers         []string
	RequiredReviewers []string
}

// CreateFromChange starts a new review for change.
func (s *Service) CreateFromChange(ctx context.Context, change *spec.Change,
	opts CreateOptions) (*Review, error) {

	id, err := s.cfg.IDs.NextID(ctx)
	if err != nil {
		return nil, err
	}

	user := opts.User
	if user == "" {
		user = change.User
	}

	now := s.now()
	r := &Review{
		ID:           id,
		Author:       change.User,
		State:        StateNeedsReview,
		Participants: make(map[string]Participant),
		Projects:     make(map[string][]string),
		Created:      now,
		Updated:      now,
	}
	r.AddParticipant(r.Author, false)

	desc := opts.Description
	if desc == "" {
		desc = ParseKeyword(change.Description).Description
	}
	r.setDescription(desc)

	for _, u := range opts.Reviewers {
		r.AddParticipant(u, false)
	}
	for _, u := range opts.RequiredReviewers {
		r.AddParticipant(u, true)
	}

	if _, err := s.applyChange(ctx, r, change, user); err != nil {
		return nil, err
	}

	err = s.cfg.Store.WithTx(ctx, func(ctx context.Context,
		st store.Storage) error {

		rec, err := r.toRecord()
		if err != nil {
			return err
		}
		saved, err := st.InsertReview(ctx, rec)
		if err != nil {
			return err
		}
		r.revision = saved.Revision
		r.Updated = saved.Updated

		return linkChanges(ctx, st, r)
	})
	if err != nil {
		return nil, fmt.Errorf("create review for change %d: %w",
			change.Number(), err)
	}

	s.log.InfoContext(ctx, "Review created", "review", r.ID,
		"change", change.Number(), "author", r.Author)

	s.notify(ctx, r, queue.ReviewPayload{
		User:    user,
		Action:  "requested",
		IsAdd:   true,
		State:   string(r.State),
		Change:  change.Number(),
		Version: r.HeadVersion(),
	})

	return r, nil
}

// UpdateFromChange refreshes review id with the content of change, adding
// a version when the content moved on.
func (s *Service) UpdateFromChange(ctx context.Context, id int64,
	change *spec.Change, user string) (*Review, error) {

	if user == "" {
		user = change.User
	}

	var (
		added       bool
		descChanged bool
	)
	r, err := s.mutate(ctx, id, func(r *Review) error {
		desc := ParseKeyword(change.Description).Description
		descChanged = desc != "" && desc != r.Description
		if descChanged {
			r.setDescription(desc)
		}

		var err error
		added, err = s.applyChange(ctx, r, change, user)

		return err
	})
	if err != nil {
		return nil, err
	}

	if added || descChanged {
		action := "updated description of"
		if added {
			action = "updated files in"
			if change.IsSubmitted() {
				action = "committed"
			}
		}
		s.notify(ctx, r, queue.ReviewPayload{
			User:                user,
			Action:              action,
			IsUpdate:            added,
			IsDescriptionChange: descChanged,
			State:               string(r.State),
			Change:              change.Number(),
			Version:             r.HeadVersion(),
		})
	}

	return r, nil
}

// ProcessChange handles a shelve or commit of changeID. Reviews already
// holding the change, or its pre-submit number oldChange, are updated. A
// review keyword naming an existing review links the change to it, and a
// bare keyword on an unreviewed change starts a new review.
func (s *Service) ProcessChange(ctx context.Context, changeID,
	oldChange int64, user string) ([]*Review, error) {

	change, err := spec.FetchChange(ctx, s.cfg.P4, changeID)
	if err != nil {
		return nil, err
	}

	ids, err := s.cfg.Store.ReviewsByChange(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if oldChange > 0 && oldChange != changeID {
		more, err := s.cfg.Store.ReviewsByChange(ctx, oldChange)
		if err != nil {
			return nil, err
		}
		ids = append(ids, more...)
	}

	kw := ParseKeyword(change.Description)
	if kw.ReviewID > 0 {
		_, err := s.cfg.Store.GetReview(ctx, kw.ReviewID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.log.WarnContext(ctx, "Change names unknown review",
				"change", changeID, "review", kw.ReviewID)

		case err != nil:
			return nil, err

		default:
			ids = append(ids, kw.ReviewID)
		}
	}
	ids = uniqueIDs(ids)

	if len(ids) == 0 {
		if !kw.Found {
			return nil, nil
		}

		r, err := s.CreateFromChange(ctx, change, CreateOptions{
			User: user,
		})
		if err != nil {
			return nil, err
		}

		return []*Review{r}, nil
	}

	out := make([]*Review, 0, len(ids))
	for _, id := range ids {
		r, err := s.UpdateFromChange(ctx, id, change, user)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

// AddRequest is an explicit request to review a change.
type AddRequest struct {
	Change int64

	// ID names an existing review to add the change to.
	ID int64

	Description string
	Reviewers   []string
	User        string
}

// Add starts a review for a change, or adds the change to review ID.
func (s *Service) Add(ctx context.Context, req AddRequest) (*Review, error) {
	if req.Change <= 0 {
		return nil, spec.NewValidationError(spec.Required, "change",
			"A change id is required.")
	}

	change, err := spec.FetchChange(ctx, s.cfg.P4, req.Change)
	if err != nil {
		return nil, err
	}
	if req.User != "" && change.User != req.User {
		return nil, fmt.Errorf("change %d belongs to %s: %w",
			req.Change, change.User, ErrUnauthorized)
	}

	// Rejected requests must not leave a shelf behind.
	if req.ID > 0 {
		if _, err := s.Get(ctx, req.ID); err != nil {
			return nil, err
		}
	} else {
		existing, err := s.cfg.Store.ReviewsByChange(ctx, req.Change)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, spec.NewValidationError(spec.InvalidType,
				"change", fmt.Sprintf("A review for change %d "+
					"already exists.", req.Change))
		}
	}

	// Opened files are shelved so reviewers can see them.
	if !change.IsSubmitted() && len(change.Files) > 0 {
		if err := spec.Shelve(ctx, s.cfg.P4, req.Change); err != nil {
			return nil, err
		}
	}

	if req.ID > 0 {
		r, err := s.UpdateFromChange(ctx, req.ID, change, req.User)
		if err != nil {
			return nil, err
		}
		if len(req.Reviewers) == 0 && req.Description == "" {
			return r, nil
		}

		return s.mutate(ctx, req.ID, func(r *Review) error {
			if req.Description != "" {
				r.setDescription(req.Description)
			}
			for _, u := range req.Reviewers {
				r.AddParticipant(u, false)
			}
			return nil
		})
	}

	return s.CreateFromChange(ctx, change, CreateOptions{
		User:        req.User,
		Description: req.Description,
		Reviewers:   req.Reviewers,
	})
}

// TransitionsFor returns the transitions user may apply to r.
func (s *Service) TransitionsFor(ctx context.Context, r *Review,
	user string) ([]Transition, error) {

	projects, err := s.cfg.Store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	return Transitions(TransitionInput{
		Current:            r.State,
		User:               user,
		Author:             r.Author,
		Pending:            r.Pending,
		Projects:           projects,
		Affected:           r.Projects,
		DisableCommit:      s.cfg.DisableCommit,
		DisableSelfApprove: s.cfg.DisableSelfApprove,
	}), nil
}

// Transition moves review id to target on behalf of user. approved:commit
// submits the shelved head change and leaves the review approved.
func (s *Service) Transition(ctx context.Context, id int64, user string,
	target State) (*Review, error) {

	if !target.Valid() {
		return nil, spec.NewValidationError(spec.InvalidType, "state",
			fmt.Sprintf("%q is not a review state.", target))
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ts, err := s.TransitionsFor(ctx, r, user)
	if err != nil {
		return nil, err
	}
	if !Offers(ts, target) {
		return nil, fmt.Errorf("%s may not move review %d to %s: %w",
			user, id, target, ErrUnauthorized)
	}

	var (
		headChange int64
		committed  int64
	)
	if target == StateApprovedCommit {
		headChange, err = r.HeadChange().UnwrapOrErr(ErrNoVersion)
		if err != nil {
			return nil, err
		}
		committed, err = spec.SubmitShelved(ctx, s.cfg.P4, headChange)
		if err != nil {
			return nil, err
		}
	}

	previous := r.State
	r, err = s.mutate(ctx, id, func(r *Review) error {
		previous = r.State
		r.State = target.Resting()
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(
		string(previous), string(target),
	).Inc()

	s.log.InfoContext(ctx, "Review state changed", "review", id,
		"user", user, "from", previous, "to", target)

	s.notify(ctx, r, queue.ReviewPayload{
		User:          user,
		Action:        stateAction(target),
		IsStateChange: true,
		PreviousState: string(previous),
		State:         string(r.State),
	})

	if committed > 0 && s.cfg.Queue != nil {
		_, err := s.cfg.Queue.Enqueue(ctx, queue.TaskCommit,
			strconv.FormatInt(committed, 10), &queue.ChangePayload{
				User:      user,
				OldChange: headChange,
			})
		if err != nil {
			s.log.WarnContext(ctx, "Unable to queue commit task",
				"review", id, "change", committed, "error", err)
		}
	}

	return r, nil
}

func stateAction(target State) string {
	switch target {
	case StateNeedsReview:
		return "requested further review of"
	case StateNeedsRevision:
		return "requested revisions to"
	case StateApproved:
		return "approved"
	case StateApprovedCommit:
		return "approved and committed"
	case StateRejected:
		return "rejected"
	case StateArchived:
		return "archived"
	default:
		return "updated"
	}
}

// Vote records user's vote on a version of review id. Version 0 means the
// head version and value 0 clears the vote.
func (s *Service) Vote(ctx context.Context, id int64, user string, value,
	version int) (*Review, error) {

	r, err := s.mutate(ctx, id, func(r *Review) error {
		return r.AddVote(user, value, version)
	})
	if err != nil {
		return nil, err
	}

	action := "cleared their vote on"
	switch value {
	case 1:
		action = "voted up"
	case -1:
		action = "voted down"
	}
	s.notify(ctx, r, queue.ReviewPayload{
		User:    user,
		Action:  action,
		IsVote:  true,
		State:   string(r.State),
		Version: r.HeadVersion(),
	})

	return r, nil
}

// SetParticipants replaces the participants of review id.
func (s *Service) SetParticipants(ctx context.Context, id int64, user string,
	data map[string]Participant) (*Review, error) {

	r, err := s.mutate(ctx, id, func(r *Review) error {
		r.SetParticipantsData(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, r, queue.ReviewPayload{
		User:              user,
		Action:            "updated reviewers on",
		IsReviewersChange: true,
		State:             string(r.State),
	})

	return r, nil
}

// Test and deploy callback statuses.
const (
	TestPass      = "pass"
	TestFail      = "fail"
	DeploySuccess = "success"
	DeployFail    = "fail"
)

// SetTestStatus records a test run result reported with token.
func (s *Service) SetTestStatus(ctx context.Context, id int64, token,
	status string, details map[string]string) (*Review, error) {

	if status != TestPass && status != TestFail {
		return nil, spec.NewValidationError(spec.InvalidType, "status",
			"Test status must be pass or fail.")
	}

	return s.setStatus(ctx, id, token, "tests", func(r *Review) {
		r.TestStatus = status
		r.TestDetails = details
	})
}

// SetDeployStatus records a deploy result reported with token.
func (s *Service) SetDeployStatus(ctx context.Context, id int64, token,
	status string, details map[string]string) (*Review, error) {

	if status != DeploySuccess && status != DeployFail {
		return nil, spec.NewValidationError(spec.InvalidType, "status",
			"Deploy status must be success or fail.")
	}

	return s.setStatus(ctx, id, token, "deploy", func(r *Review) {
		r.DeployStatus = status
		r.DeployDetails = details
	})
}

func (s *Service) setStatus(ctx context.Context, id int64, token,
	kind string, apply func(r *Review)) (*Review, error) {

	r, err := s.mutate(ctx, id, func(r *Review) error {
		if token == "" || token != r.Token {
			return ErrBadToken
		}
		apply(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, r, queue.ReviewPayload{
		Action:         "reported " + kind + " for",
		IsStatusChange: true,
		State:          string(r.State),
	})

	return r, nil
}

// ToggleRead marks depotFile of a review version as read or unread by
// user.
func (s *Service) ToggleRead(ctx context.Context, id int64, version int,
	depotFile, user string, read bool) (FileInfo, error) {

	r, err := s.Get(ctx, id)
	if err != nil {
		return FileInfo{}, err
	}

	v, err := r.Version(version).UnwrapOrErr(
		fmt.Errorf("review %d version %d: %w", id, version,
			ErrNoVersion),
	)
	if err != nil {
		return FileInfo{}, err
	}

	f, err := s.versionFile(ctx, v, depotFile)
	if err != nil {
		return FileInfo{}, err
	}

	fi, err := s.cfg.Store.GetFileInfo(ctx, id, depotFile)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fi = FileInfo{ReviewID: id, DepotFile: depotFile}

	case err != nil:
		return FileInfo{}, err
	}
	if fi.ReadBy == nil {
		fi.ReadBy = make(map[string]ReadMark)
	}

	if read {
		fi.ReadBy[user] = ReadMark{Version: version, Digest: f.Digest}
	} else {
		delete(fi.ReadBy, user)
	}

	return s.cfg.Store.SaveFileInfo(ctx, fi)
}

// versionFile finds depotFile in a version, asking the server when the
// version was recorded without a file list.
func (s *Service) versionFile(ctx context.Context, v Version,
	depotFile string) (VersionFile, error) {

	if f, err := v.File(depotFile).UnwrapOrErr(ErrNoFile); err == nil {
		return f, nil
	}
	if len(v.Files) > 0 {
		return VersionFile{}, fmt.Errorf("%s: %w", depotFile, ErrNoFile)
	}

	files, err := spec.ChangeFiles(ctx, s.cfg.P4, v.Change, v.Pending)
	if err != nil {
		return VersionFile{}, err
	}
	for _, f := range files {
		if f.DepotFile == depotFile {
			return versionFileOf(f), nil
		}
	}

	return VersionFile{}, fmt.Errorf("%s: %w", depotFile, ErrNoFile)
}

// FileInfos returns the read state of every tracked file in review id.
func (s *Service) FileInfos(ctx context.Context, id int64) ([]FileInfo,
	error) {

	return s.cfg.Store.ListFileInfo(ctx, id)
}

// mutate applies fn to a fresh copy of review id and saves it, retrying
// when another writer got there first.
func (s *Service) mutate(ctx context.Context, id int64,
	fn func(r *Review) error) (*Review, error) {

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r); err != nil {
			return nil, err
		}

		err = s.save(ctx, r)
		if errors.Is(err, store.ErrConflict) {
			s.log.DebugContext(ctx, "Review save conflicted",
				"review", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		return r, nil
	}

	return nil, fmt.Errorf("review %d: %w", id, store.ErrConflict)
}

func (s *Service) save(ctx context.Context, r *Review) error {
	r.Updated = s.now()

	return s.cfg.Store.WithTx(ctx, func(ctx context.Context,
		st store.Storage) error {

		rec, err := r.toRecord()
		if err != nil {
			return err
		}
		saved, err := st.UpdateReview(ctx, rec)
		if err != nil {
			return err
		}
		r.revision = saved.Revision
		r.Updated = saved.Updated

		return linkChanges(ctx, st, r)
	})
}

func linkChanges(ctx context.Context, st store.Storage, r *Review) error {
	for _, c := range append(append([]int64(nil), r.Changes...),
		r.Commits...) {

		if err := st.AddReviewChange(ctx, r.ID, c); err != nil {
			return err
		}
	}

	return nil
}

// applyChange folds change into r: affected projects, change lists and a
// new version unless the content is identical to the pending head. It
// reports whether a version was added.
func (s *Service) applyChange(ctx context.Context, r *Review,
	change *spec.Change, user string) (bool, error) {

	num := change.Number()
	pending := !change.IsSubmitted()

	// A commit is captured once. Commit triggers and commit tasks queued
	// by transitions both deliver it.
	if !pending && hasCommittedVersion(r, num) {
		return false, nil
	}

	files, err := spec.ChangeFiles(ctx, s.cfg.P4, num, pending)
	if err != nil {
		return false, err
	}

	snapshot := make([]VersionFile, len(files))
	paths := make([]string, len(files))
	for i, f := range files {
		snapshot[i] = versionFileOf(f)
		paths[i] = f.DepotFile
	}

	projects, err := s.cfg.Store.ListProjects(ctx)
	if err != nil {
		return false, fmt.Errorf("list projects: %w", err)
	}
	for id, branches := range project.Affected(projects, paths) {
		r.Projects[id] = mergeSorted(r.Projects[id], branches)
	}

	if !hasChange(r.Changes, num) {
		r.Changes = append(r.Changes, num)
	}
	if !pending && !hasChange(r.Commits, num) {
		r.Commits = append(r.Commits, num)
	}
	r.Pending = pending

	var prev []VersionFile
	if n := len(r.Versions); n > 0 {
		head := r.Versions[n-1]
		prev = head.Files
		if prev == nil {
			prev = []VersionFile{}
		}
		if pending && head.Pending && head.Change == num &&
			difference(prev, snapshot) == DifferenceIdentical {

			return false, nil
		}
	}

	r.Versions = append(r.Versions, Version{
		Change:     num,
		User:       user,
		Time:       s.now(),
		Pending:    pending,
		Difference: difference(prev, snapshot),
		Files:      snapshot,
	})
	r.Token = uuid.NewString()

	return true, nil
}

// hasCommittedVersion reports whether r already holds a committed version
// of change num.
func hasCommittedVersion(r *Review, num int64) bool {
	for _, v := range r.Versions {
		if !v.Pending && v.Change == num {
			return true
		}
	}

	return false
}

// setDescription replaces the description and adds the users newly
// mentioned in it as participants.
func (r *Review) setDescription(desc string) {
	added := ParseMentions(desc).Added(ParseMentions(r.Description))
	r.Description = desc
	for _, user := range added.Users() {
		if user == r.Author {
			continue
		}
		r.AddParticipant(user, added[user])
	}
}

// notify queues a review task. A failure is logged; the review change
// itself has already been saved.
func (s *Service) notify(ctx context.Context, r *Review,
	p queue.ReviewPayload) {

	if s.cfg.Queue == nil {
		return
	}

	if s.cfg.CallbackURL != "" && r.Token != "" {
		p.TestURL = s.callbackURL(r, "tests")
		p.DeployURL = s.callbackURL(r, "deploy")
	}

	_, err := s.cfg.Queue.Enqueue(
		ctx, queue.TaskReview, strconv.FormatInt(r.ID, 10), &p,
	)
	if err != nil {
		s.log.WarnContext(ctx, "Unable to queue review task",
			"review", r.ID, "error", err)
	}
}

// callbackURL builds the kind ("tests" or "deploy") status callback for r.
func (s *Service) callbackURL(r *Review, kind string) string {
	return fmt.Sprintf("%s/reviews/%d/%s/%s/%s",
		strings.TrimRight(s.cfg.CallbackURL, "/"), r.ID, kind,
		queue.StatusPlaceholder, url.PathEscape(r.Token))
}

func versionFileOf(f spec.File) VersionFile {
	return VersionFile{
		DepotFile: f.DepotFile,
		Action:    string(f.Action.Normalize()),
		Rev:       f.Rev,
		Digest:    f.Digest,
	}
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)

	return out
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}
