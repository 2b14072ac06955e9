package review

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/project"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/spec"
	"github.com/roasbeef/p4review/internal/store"
)

type queuedTask struct {
	typ     queue.TaskType
	subject string
	payload any
}

// fakeQueue records enqueued tasks.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []queuedTask
}

func (f *fakeQueue) Enqueue(_ context.Context, typ queue.TaskType,
	subject string, payload any) (queue.Task, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.tasks = append(f.tasks, queuedTask{typ, subject, payload})

	return queue.Task{
		ID: int64(len(f.tasks)), Type: typ, Subject: subject,
	}, nil
}

func (f *fakeQueue) reviewPayloads() []queue.ReviewPayload {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []queue.ReviewPayload
	for _, t := range f.tasks {
		if p, ok := t.payload.(*queue.ReviewPayload); ok {
			out = append(out, *p)
		}
	}

	return out
}

type testFile struct {
	path   string
	action string
	rev    int
	digest string
}

// scriptChange makes change num known to the mock server along with its
// shelved or committed files.
func scriptChange(m *p4.MockClient, num int64, user, status, desc string,
	files ...testFile) {

	n := strconv.FormatInt(num, 10)
	m.On("change", []string{"-o", n}, p4.Record{
		"Change":      n,
		"Client":      "ws",
		"User":        user,
		"Status":      status,
		"Description": desc,
	})

	rec := p4.Record{"change": n}
	for i, f := range files {
		idx := strconv.Itoa(i)
		rec["depotFile"+idx] = f.path
		rec["action"+idx] = f.action
		rec["rev"+idx] = strconv.Itoa(f.rev)
		rec["digest"+idx] = f.digest
	}

	args := []string{"-s", "-S", n}
	if status == string(spec.ChangeSubmitted) {
		args = []string{"-s", n}
	}
	m.On("describe", args, rec)
}

type harness struct {
	svc   *Service
	p4    *p4.MockClient
	store *store.MockStore
	queue *fakeQueue
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		p4:    p4.NewMockClient(),
		store: store.NewMockStore(),
		queue: &fakeQueue{},
	}

	cfg := Config{
		Store: h.store,
		P4:    h.p4,
		IDs:   NewSequenceAllocator(100),
		Queue: h.queue,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.svc = NewService(cfg)

	return h
}

var mainFile = testFile{
	path: "//depot/main/a.c", action: "edit", rev: 3, digest: "AAAA",
}

func TestCreateFromChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveProject(ctx, project.Project{
		ID:      "swarm",
		Members: []string{"alice"},
		Branches: []project.Branch{{
			ID: "main", Paths: []string{"//depot/main/..."},
		}},
	}))

	scriptChange(h.p4, 12, "alice", "pending", "Fix it @bob #review",
		mainFile)
	change, err := spec.FetchChange(ctx, h.p4, 12)
	require.NoError(t, err)

	r, err := h.svc.CreateFromChange(ctx, change, CreateOptions{
		RequiredReviewers: []string{"carol"},
	})
	require.NoError(t, err)

	require.Equal(t, int64(100), r.ID)
	require.Equal(t, "alice", r.Author)
	require.Equal(t, "Fix it @bob", r.Description)
	require.Equal(t, StateNeedsReview, r.State)
	require.True(t, r.Pending)
	require.Equal(t, []int64{12}, r.Changes)
	require.Empty(t, r.Commits)
	require.Equal(t, []string{"bob", "carol"}, r.Reviewers())
	require.True(t, r.Participants["carol"].Required)
	require.Equal(t, map[string][]string{"swarm": {"main"}}, r.Projects)
	require.NotEmpty(t, r.Token)

	require.Equal(t, 1, r.HeadVersion())
	v := r.Version(1).UnwrapOr(Version{})
	require.Equal(t, int64(12), v.Change)
	require.Equal(t, DifferenceUnknown, v.Difference)
	require.Equal(t, "alice", v.User)

	ids, err := h.store.ReviewsByChange(ctx, 12)
	require.NoError(t, err)
	require.Equal(t, []int64{100}, ids)

	payloads := h.queue.reviewPayloads()
	require.Len(t, payloads, 1)
	require.True(t, payloads[0].IsAdd)
	require.Empty(t, payloads[0].TestURL)
}

func TestProcessChangeVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Without a keyword nothing happens.
	scriptChange(h.p4, 12, "alice", "pending", "Fix it", mainFile)
	reviews, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	require.Empty(t, reviews)

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	reviews, err = h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	token := reviews[0].Token

	// Re-shelving identical content adds nothing.
	reviews, err = h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, 1, reviews[0].HeadVersion())
	require.Equal(t, token, reviews[0].Token)

	changed := mainFile
	changed.digest = "BBBB"
	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", changed)
	reviews, err = h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, reviews[0].HeadVersion())
	require.Equal(t, DifferenceDiffers, reviews[0].Versions[1].Difference)
	require.NotEqual(t, token, reviews[0].Token)
}

func TestReviewTasksCarryCallbackURLs(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.CallbackURL = "https://swarm.example.com/"
	})
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	reviews, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	token := reviews[0].Token

	payloads := h.queue.reviewPayloads()
	require.Len(t, payloads, 1)
	require.Equal(t,
		"https://swarm.example.com/reviews/100/tests/{status}/"+token,
		payloads[0].TestURL)
	require.Equal(t,
		"https://swarm.example.com/reviews/100/deploy/{status}/"+token,
		payloads[0].DeployURL)

	// A new version rotates the token and the published URLs follow.
	changed := mainFile
	changed.digest = "BBBB"
	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", changed)
	reviews, err = h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	payloads = h.queue.reviewPayloads()
	last := payloads[len(payloads)-1]
	require.NotEqual(t, token, reviews[0].Token)
	require.True(t, strings.HasSuffix(last.TestURL, "/"+reviews[0].Token))

	_, err = h.svc.SetTestStatus(ctx, 100, reviews[0].Token, "pass", nil)
	require.NoError(t, err)
}

func TestProcessChangeKeywordLinksReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	other := testFile{
		path: "//depot/main/b.c", action: "add", rev: 1, digest: "CCCC",
	}
	scriptChange(h.p4, 20, "alice", "pending", "More [review-100]", other)
	reviews, err := h.svc.ProcessChange(ctx, 20, 0, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, int64(100), reviews[0].ID)
	require.Equal(t, []int64{12, 20}, reviews[0].Changes)
	require.Equal(t, "More", reviews[0].Description)

	// A keyword naming an unknown review starts a fresh one.
	scriptChange(h.p4, 21, "alice", "pending", "#review-999", other)
	_, err = h.svc.ProcessChange(ctx, 21, 0, "alice")
	require.NoError(t, err)

	ids, err := h.store.ReviewsByChange(ctx, 21)
	require.NoError(t, err)
	require.Equal(t, []int64{101}, ids)
}

func TestTransitionApproveAndCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	h.p4.On("submit", []string{"-e", "12"}, p4.Record{
		"submittedChange": "13",
	})

	r, err := h.svc.Transition(ctx, 100, "bob", StateApprovedCommit)
	require.NoError(t, err)
	require.Equal(t, StateApproved, r.State)

	// The review task is queued before the commit task.
	h.queue.mu.Lock()
	tasks := append([]queuedTask(nil), h.queue.tasks...)
	h.queue.mu.Unlock()
	require.Len(t, tasks, 3)
	require.Equal(t, queue.TaskReview, tasks[1].typ)
	require.Equal(t, queue.TaskCommit, tasks[2].typ)
	require.Equal(t, "13", tasks[2].subject)
	require.Equal(t, int64(12),
		tasks[2].payload.(*queue.ChangePayload).OldChange)

	state := tasks[1].payload.(*queue.ReviewPayload)
	require.True(t, state.IsStateChange)
	require.Equal(t, "needsReview", state.PreviousState)

	// The commit task then folds the submitted change in.
	scriptChange(h.p4, 13, "alice", "submitted", "Fix it #review",
		mainFile)
	reviews, err := h.svc.ProcessChange(ctx, 13, 12, "bob")
	require.NoError(t, err)
	require.Len(t, reviews, 1)

	r = reviews[0]
	require.False(t, r.Pending)
	require.Equal(t, []int64{12, 13}, r.Changes)
	require.Equal(t, []int64{13}, r.Commits)
	require.Equal(t, 2, r.HeadVersion())
	require.Equal(t, DifferenceIdentical, r.Versions[1].Difference)

	// Nothing left to commit.
	ts, err := h.svc.TransitionsFor(ctx, r, "bob")
	require.NoError(t, err)
	require.False(t, Offers(ts, StateApprovedCommit))
}

func TestProcessCommitOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	scriptChange(h.p4, 13, "alice", "submitted", "Fix it #review",
		mainFile)
	reviews, err := h.svc.ProcessChange(ctx, 13, 12, "alice")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, 2, reviews[0].HeadVersion())

	_, err = h.svc.Vote(ctx, 100, "bob", 1, 0)
	require.NoError(t, err)
	before := len(h.queue.reviewPayloads())

	// The commit trigger and the queued commit task both deliver 13.
	for i := 0; i < 2; i++ {
		reviews, err = h.svc.ProcessChange(ctx, 13, 12, "alice")
		require.NoError(t, err)
		require.Len(t, reviews, 1)
	}

	r := reviews[0]
	require.Equal(t, 2, r.HeadVersion())
	require.Equal(t, []int64{13}, r.Commits)
	require.Equal(t, []int64{12, 13}, r.Changes)

	vote := r.ParticipantsData()["bob"].Vote
	require.NotNil(t, vote)
	require.Equal(t, 2, vote.Version)
	require.False(t, vote.IsStale)

	require.Len(t, h.queue.reviewPayloads(), before)
}

func TestTransitionRejected(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.DisableSelfApprove = true
	})
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	_, err = h.svc.Transition(ctx, 100, "alice", StateApproved)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.Transition(ctx, 100, "alice", State("merged"))
	var verr *spec.ValidationError
	require.ErrorAs(t, err, &verr)

	r, err := h.svc.Transition(ctx, 100, "bob", StateApproved)
	require.NoError(t, err)
	require.Equal(t, StateApproved, r.State)

	_, err = h.svc.Transition(ctx, 999, "bob", StateApproved)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Add(ctx, AddRequest{})
	var verr *spec.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Messages, "change")

	h.p4.On("change", []string{"-o", "12"}, p4.Record{
		"Change":      "12",
		"User":        "alice",
		"Status":      "pending",
		"Description": "Fix it",
		"Files0":      "//depot/main/a.c\t# edit",
	})
	h.p4.On("describe", []string{"-s", "-S", "12"}, p4.Record{
		"change": "12", "depotFile0": "//depot/main/a.c",
		"action0": "edit", "rev0": "3", "digest0": "AAAA",
	})
	h.p4.On("shelve", []string{"-r", "-c", "12"}, p4.Record{})

	_, err = h.svc.Add(ctx, AddRequest{Change: 12, User: "mallory"})
	require.ErrorIs(t, err, ErrUnauthorized)

	r, err := h.svc.Add(ctx, AddRequest{
		Change:      12,
		User:        "alice",
		Description: "Please look @dave",
		Reviewers:   []string{"erin"},
	})
	require.NoError(t, err)
	require.Equal(t, "Please look @dave", r.Description)
	require.Equal(t, []string{"dave", "erin"}, r.Reviewers())

	shelves := func() int {
		var n int
		for _, c := range h.p4.Calls() {
			if c.Cmd == "shelve" {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, shelves())

	// A duplicate is rejected before anything is shelved.
	_, err = h.svc.Add(ctx, AddRequest{Change: 12, User: "alice"})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Messages["change"], "already exists")
	require.Equal(t, 1, shelves())

	// Adding to an explicit review links the change to it.
	scriptChange(h.p4, 30, "alice", "pending", "Follow up", testFile{
		path: "//depot/main/c.c", action: "add", rev: 1, digest: "DDDD",
	})
	r, err = h.svc.Add(ctx, AddRequest{Change: 30, ID: r.ID, User: "alice"})
	require.NoError(t, err)
	require.Equal(t, []int64{12, 30}, r.Changes)

	_, err = h.svc.Add(ctx, AddRequest{Change: 30, ID: 555, User: "alice"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestVote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	r, err := h.svc.Vote(ctx, 100, "bob", 1, 0)
	require.NoError(t, err)
	up, _ := r.VoteCounts()
	require.Equal(t, 1, up)

	_, err = h.svc.Vote(ctx, 100, "bob", 1, 7)
	require.ErrorIs(t, err, ErrNoVersion)

	payloads := h.queue.reviewPayloads()
	require.True(t, payloads[len(payloads)-1].IsVote)
}

func TestSetParticipantsKeepsVotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	_, err = h.svc.Vote(ctx, 100, "carol", -1, 0)
	require.NoError(t, err)

	r, err := h.svc.SetParticipants(ctx, 100, "mallory",
		map[string]Participant{
			"bob":   {Vote: &Vote{Value: 7, Version: 99}},
			"carol": {Vote: &Vote{Value: 1, Version: 1}},
		})
	require.NoError(t, err)

	require.Nil(t, r.Participants["bob"].Vote)
	require.Equal(t, Vote{Value: -1, Version: 1},
		*r.Participants["carol"].Vote)

	up, down := r.VoteCounts()
	require.Zero(t, up)
	require.Equal(t, 1, down)
}

func TestSetTestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	reviews, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)
	token := reviews[0].Token

	_, err = h.svc.SetTestStatus(ctx, 100, "wrong", TestPass, nil)
	require.ErrorIs(t, err, ErrBadToken)

	_, err = h.svc.SetTestStatus(ctx, 100, token, "maybe", nil)
	var verr *spec.ValidationError
	require.ErrorAs(t, err, &verr)

	r, err := h.svc.SetTestStatus(ctx, 100, token, TestFail,
		map[string]string{"url": "http://ci/1"})
	require.NoError(t, err)
	require.Equal(t, TestFail, r.TestStatus)
	require.Equal(t, "http://ci/1", r.TestDetails["url"])

	r, err = h.svc.SetDeployStatus(ctx, 100, token, DeploySuccess, nil)
	require.NoError(t, err)
	require.Equal(t, DeploySuccess, r.DeployStatus)
}

func TestToggleRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	fi, err := h.svc.ToggleRead(ctx, 100, 1, mainFile.path, "nonadmin",
		true)
	require.NoError(t, err)
	require.Equal(t, map[string]ReadMark{
		"nonadmin": {Version: 1, Digest: "AAAA"},
	}, fi.ReadBy)

	fi, err = h.svc.ToggleRead(ctx, 100, 1, mainFile.path, "nonadmin",
		false)
	require.NoError(t, err)
	require.Empty(t, fi.ReadBy)

	_, err = h.svc.ToggleRead(ctx, 100, 2, mainFile.path, "nonadmin",
		true)
	require.ErrorIs(t, err, ErrNoVersion)

	_, err = h.svc.ToggleRead(ctx, 100, 1, "//depot/nope", "nonadmin",
		true)
	require.ErrorIs(t, err, ErrNoFile)

	infos, err := h.svc.FileInfos(ctx, 100)
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

// conflictStore fails the first n review updates with ErrConflict.
type conflictStore struct {
	*store.MockStore

	mu sync.Mutex
	n  int
}

func (c *conflictStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, s store.Storage) error) error {

	return fn(ctx, c)
}

func (c *conflictStore) UpdateReview(ctx context.Context,
	r store.ReviewRecord) (store.ReviewRecord, error) {

	c.mu.Lock()
	if c.n > 0 {
		c.n--
		c.mu.Unlock()
		return store.ReviewRecord{}, store.ErrConflict
	}
	c.mu.Unlock()

	return c.MockStore.UpdateReview(ctx, r)
}

func TestMutateRetriesConflicts(t *testing.T) {
	cs := &conflictStore{MockStore: store.NewMockStore()}
	h := newHarness(t, func(c *Config) {
		c.Store = cs
	})
	ctx := context.Background()

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	_, err := h.svc.ProcessChange(ctx, 12, 0, "alice")
	require.NoError(t, err)

	cs.n = maxSaveAttempts - 1
	_, err = h.svc.Vote(ctx, 100, "bob", 1, 0)
	require.NoError(t, err)

	cs.n = maxSaveAttempts
	_, err = h.svc.Vote(ctx, 100, "bob", -1, 0)
	require.ErrorIs(t, err, store.ErrConflict)

	r, err := h.svc.Get(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, r.Participants["bob"].Vote.Value)
}

func TestListenerProcessesShelve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg := queue.NewRegistry()
	h.svc.Register(reg)
	require.Equal(t, []string{"review.change"},
		reg.Listeners(queue.TaskShelve))

	scriptChange(h.p4, 12, "alice", "pending", "Fix it #review", mainFile)
	ev := &queue.Event{
		Task:    queue.Task{Type: queue.TaskShelve, Subject: "12"},
		Payload: &queue.ChangePayload{User: "alice"},
		Params:  make(map[string]any),
	}
	require.NoError(t, h.svc.onChange(ctx, ev))
	reviews := queue.Param[[]*Review](ev, ParamReviews).UnwrapOr(nil)
	require.Len(t, reviews, 1)

	ev = &queue.Event{
		Task:   queue.Task{Type: queue.TaskReview, Subject: "100"},
		Params: make(map[string]any),
	}
	require.NoError(t, h.svc.onReview(ctx, ev))
	require.True(t, queue.Param[*Review](ev, ParamReview).IsSome())

	ev.Task.Subject = "nope"
	require.Error(t, h.svc.onReview(ctx, ev))

	ev.Task.Subject = "404"
	require.ErrorIs(t, h.svc.onReview(ctx, ev), store.ErrNotFound)
}
