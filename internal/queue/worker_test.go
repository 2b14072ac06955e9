package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *Store, *Registry) {
	t.Helper()

	s := newTestStore(t)
	reg := NewRegistry()

	w := NewWorker(WorkerConfig{
		Store:        s,
		Registry:     reg,
		PollInterval: 10 * time.Millisecond,
		Log:          discardLogger(),
	})

	return w, s, reg
}

func TestRegistry_PriorityOrder(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, *Event) error { return nil }

	reg.OnTask(TaskReview, "mail", 10, noop)
	reg.OnTask(TaskReview, "review", 100, noop)
	reg.OnTask(TaskReview, "activity", 50, noop)
	reg.OnTask(TaskReview, "activity-2", 50, noop)
	reg.OnTask(TaskReview, "events", 0, noop)

	require.Equal(t, []string{
		"review", "activity", "activity-2", "mail", "events",
	}, reg.Listeners(TaskReview))
	require.Empty(t, reg.Listeners(TaskCommit))
}

func TestWorker_DrainSharesParams(t *testing.T) {
	w, s, reg := newTestWorker(t)
	ctx := context.Background()

	var got []string
	reg.OnTask(TaskReview, "first", 100, func(_ context.Context,
		ev *Event) error {

		p := ev.Payload.(*ReviewPayload)
		ev.Params["mail"] = "to:" + p.User
		return nil
	})
	reg.OnTask(TaskReview, "second", 10, func(_ context.Context,
		ev *Event) error {

		got = append(got, Param[string](ev, "mail").UnwrapOr(""))
		require.True(t, Param[int](ev, "mail").IsNone())
		return nil
	})

	_, err := s.Enqueue(ctx, TaskReview, "5", &ReviewPayload{User: "bob"})
	require.NoError(t, err)

	res, err := w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{Processed: 1}, res)
	require.Equal(t, []string{"to:bob"}, got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Done)
}

func TestWorker_ListenerErrorAborts(t *testing.T) {
	w, s, reg := newTestWorker(t)
	s.cfg.MaxAttempts = 1
	ctx := context.Background()

	var laterRan bool
	reg.OnTask(TaskCommit, "fails", 100, func(context.Context,
		*Event) error {

		return errors.New("p4 unavailable")
	})
	reg.OnTask(TaskCommit, "later", 10, func(context.Context,
		*Event) error {

		laterRan = true
		return nil
	})

	task, err := s.Enqueue(ctx, TaskCommit, "12", nil)
	require.NoError(t, err)

	res, err := w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{Failed: 1}, res)
	require.False(t, laterRan)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.LastError, "p4 unavailable")
}

func TestWorker_ListenerPanicFailsTask(t *testing.T) {
	w, s, reg := newTestWorker(t)
	ctx := context.Background()

	reg.OnTask(TaskJob, "panics", 0, func(context.Context, *Event) error {
		panic("bad listener")
	})

	task, err := s.Enqueue(ctx, TaskJob, "job000001", nil)
	require.NoError(t, err)

	res, err := w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Contains(t, got.LastError, "bad listener")
}

func TestWorker_FailedTaskWaitsForRetryDelay(t *testing.T) {
	w, s, reg := newTestWorker(t)
	ctx := context.Background()
	advance := stepClock(s, time.Unix(1_700_000_000, 0))

	var calls int
	reg.OnTask(TaskUser, "flaky", 0, func(context.Context, *Event) error {
		calls++
		return errors.New("p4 timeout")
	})

	task, err := s.Enqueue(ctx, TaskUser, "bob", nil)
	require.NoError(t, err)

	res, err := w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{Failed: 1}, res)
	require.Equal(t, 1, calls)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 1, got.Attempts)

	// Draining again before the delay leaves the task alone.
	res, err = w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{}, res)
	require.Equal(t, 1, calls)

	advance(s.cfg.RetryDelay)

	res, err = w.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{Failed: 1}, res)
	require.Equal(t, 2, calls)

	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, StatusPending, got.Status)
}

func TestWorker_LifecycleListeners(t *testing.T) {
	w, _, reg := newTestWorker(t)

	var phases []string
	reg.OnStartup("start", 0, func(context.Context, *Event) error {
		phases = append(phases, "startup")
		return nil
	})
	reg.OnShutdown("stop", 0, func(context.Context, *Event) error {
		phases = append(phases, "shutdown")
		return errors.New("ignored")
	})

	_, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"startup", "shutdown"}, phases)
}

func TestWorker_SingleDrain(t *testing.T) {
	w, s, reg := newTestWorker(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	reg.OnTask(TaskUser, "block", 0, func(context.Context, *Event) error {
		close(entered)
		<-release
		return nil
	})

	_, err := s.Enqueue(ctx, TaskUser, "alice", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := w.Drain(ctx)
		done <- err
	}()

	<-entered
	_, err = w.Drain(ctx)
	require.ErrorIs(t, err, ErrDrainRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestWorker_Receive(t *testing.T) {
	w, s, _ := newTestWorker(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, TaskGroup, "devs", nil)
	require.NoError(t, err)

	resp, err := w.Receive(ctx, StatsRequest{}).Unpack()
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.(StatsResponse).Stats.Pending)

	resp, err = w.Receive(ctx, DrainRequest{}).Unpack()
	require.NoError(t, err)
	require.Equal(t, 1, resp.(DrainResponse).Result.Processed)
}

func TestWorker_RunRequeuesInterrupted(t *testing.T) {
	w, s, reg := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processed := make(chan int64, 1)
	reg.OnTask(TaskShelve, "record", 0, func(_ context.Context,
		ev *Event) error {

		processed <- ev.Task.ID
		return nil
	})

	task, err := s.Enqueue(ctx, TaskShelve, "3", nil)
	require.NoError(t, err)

	// Simulate a crash mid-task.
	claim(t, s)

	runErr := make(chan error, 1)
	go func() {
		runErr <- w.Run(ctx)
	}()

	select {
	case id := <-processed:
		require.Equal(t, task.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("interrupted task was not reprocessed")
	}

	cancel()
	require.NoError(t, <-runErr)
}
