package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roasbeef/p4review/internal/db"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore creates a queue backed by a real SQLite database in a
// temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbStore, err := db.Open(
		filepath.Join(t.TempDir(), "queue.db"), discardLogger(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		dbStore.Close()
	})

	return NewStore(dbStore, DefaultConfig())
}

func claim(t *testing.T, s *Store) Task {
	t.Helper()

	next, err := s.Claim(context.Background())
	require.NoError(t, err)
	require.True(t, next.IsSome(), "queue unexpectedly empty")

	return next.UnwrapOr(Task{})
}

// stepClock pins the store clock to start and returns a func that moves it
// forward.
func stepClock(s *Store, start time.Time) func(time.Duration) {
	now := start
	s.now = func() time.Time { return now }

	return func(d time.Duration) {
		now = now.Add(d)
	}
}

func TestStore_EnqueueAndClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Enqueue(ctx, TaskShelve, "42", &ChangePayload{
		User: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, 0, task.Attempts)

	claimed := claim(t, s)
	require.Equal(t, task.ID, claimed.ID)
	require.Equal(t, StatusRunning, claimed.Status)
	require.Equal(t, 1, claimed.Attempts)

	p, err := DecodePayload[ChangePayload](claimed)
	require.NoError(t, err)
	require.Equal(t, "alice", p.User)

	// Nothing else to claim.
	next, err := s.Claim(ctx)
	require.NoError(t, err)
	require.True(t, next.IsNone())

	require.NoError(t, s.MarkDone(ctx, claimed.ID))

	got, err := s.Get(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDone, got.Status)
}

func TestStore_EnqueueRejectsUnknownType(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Enqueue(context.Background(), TaskType("bogus"), "1", nil)
	require.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_MarkFailedParksAfterMaxAttempts(t *testing.T) {
	s := newTestStore(t)
	s.cfg.MaxAttempts = 2
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	advance := stepClock(s, base)

	_, err := s.Enqueue(ctx, TaskCommit, "7", nil)
	require.NoError(t, err)

	first := claim(t, s)
	require.NoError(t, s.MarkFailed(ctx, first.ID, errors.New("boom")))

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, "boom", got.LastError)
	require.Equal(
		t, base.Add(s.cfg.RetryDelay).Unix(), got.AvailableAt.Unix(),
	)

	// The failed task is held back until its retry delay passes.
	next, err := s.Claim(ctx)
	require.NoError(t, err)
	require.True(t, next.IsNone())

	advance(s.cfg.RetryDelay)

	second := claim(t, s)
	require.Equal(t, 2, second.Attempts)
	require.NoError(t, s.MarkFailed(ctx, second.ID, errors.New("again")))

	got, err = s.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)

	failed, err := s.List(ctx, StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestStore_PurgeDone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return base }

	_, err := s.Enqueue(ctx, TaskUser, "bob", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, claim(t, s).ID))

	_, err = s.Enqueue(ctx, TaskUser, "carol", nil)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	purged, err := s.PurgeDone(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestStore_ResetRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, TaskGroup, "devs", nil)
	require.NoError(t, err)
	claim(t, s)

	reset, err := s.ResetRunning(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), reset)

	again := claim(t, s)
	require.Equal(t, 2, again.Attempts)
}

func TestStore_ConcurrentClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const numTasks = 40
	for i := 0; i < numTasks; i++ {
		_, err := s.Enqueue(ctx, TaskJob, fmt.Sprintf("job%06d", i), nil)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				next, err := s.Claim(ctx)
				if err != nil || next.IsNone() {
					return
				}

				task := next.UnwrapOr(Task{})
				mu.Lock()
				seen[task.ID] = !seen[task.ID]
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every task claimed exactly once.
	require.Len(t, seen, numTasks)
	for id, once := range seen {
		require.True(t, once, "task %d claimed twice", id)
	}
}

// TestStore_FIFOOrdering verifies that tasks are always claimed in the
// order they were queued.
func TestStore_FIFOOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		ctx := context.Background()

		types := rapid.SliceOfN(
			rapid.SampledFrom(TaskTypes), 1, 30,
		).Draw(rt, "types")

		var ids []int64
		for i, typ := range types {
			task, err := s.Enqueue(ctx, typ, fmt.Sprint(i), nil)
			require.NoError(t, err)
			ids = append(ids, task.ID)
		}

		for i := range ids {
			task := claim(t, s)
			require.Equal(
				t, ids[i], task.ID, "FIFO violation at %d", i,
			)
			require.Equal(t, types[i], task.Type)
		}

		next, err := s.Claim(ctx)
		require.NoError(t, err)
		require.True(t, next.IsNone())
	})
}

// TestStore_StatsConsistency verifies that stats always match the actions
// taken on the queue.
func TestStore_StatsConsistency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		s.cfg.MaxAttempts = 1
		ctx := context.Background()

		n := rapid.IntRange(0, 20).Draw(rt, "enqueue")
		for i := 0; i < n; i++ {
			_, err := s.Enqueue(ctx, TaskReview, fmt.Sprint(i), nil)
			require.NoError(t, err)
		}

		claimed := rapid.IntRange(0, n).Draw(rt, "claimed")
		done := rapid.IntRange(0, claimed).Draw(rt, "done")
		failed := rapid.IntRange(0, claimed-done).Draw(rt, "failed")

		var tasks []Task
		for i := 0; i < claimed; i++ {
			tasks = append(tasks, claim(t, s))
		}
		for _, task := range tasks[:done] {
			require.NoError(t, s.MarkDone(ctx, task.ID))
		}
		for _, task := range tasks[done : done+failed] {
			require.NoError(t, s.MarkFailed(
				ctx, task.ID, errors.New("x"),
			))
		}

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(n-claimed), stats.Pending)
		require.Equal(t, int64(claimed-done-failed), stats.Running)
		require.Equal(t, int64(done), stats.Done)
		require.Equal(t, int64(failed), stats.Failed)
		require.Equal(t, n-claimed > 0, stats.OldestPending != nil)
	})
}

// TestStore_FailRetryInvariant verifies that failed tasks cycle back to
// pending with increasing attempt counts until they run out of attempts.
func TestStore_FailRetryInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		s.cfg.MaxAttempts = rapid.IntRange(1, 8).Draw(rt, "max")
		ctx := context.Background()
		advance := stepClock(s, time.Unix(1_700_000_000, 0))

		task, err := s.Enqueue(ctx, TaskShelve, "1", nil)
		require.NoError(t, err)

		for i := 1; i <= s.cfg.MaxAttempts; i++ {
			if i > 1 {
				advance(s.cfg.MaxRetryDelay)
			}
			claimed := claim(t, s)
			require.Equal(t, i, claimed.Attempts)

			err := s.MarkFailed(
				ctx, claimed.ID, fmt.Errorf("error-%d", i),
			)
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		require.Equal(t, StatusFailed, got.Status)
		require.Equal(t, s.cfg.MaxAttempts, got.Attempts)
		require.Equal(
			t, fmt.Sprintf("error-%d", s.cfg.MaxAttempts),
			got.LastError,
		)

		advance(s.cfg.MaxRetryDelay)
		next, err := s.Claim(ctx)
		require.NoError(t, err)
		require.True(t, next.IsNone())
	})
}

func TestConfig_RetryDelayDoublesToCap(t *testing.T) {
	cfg := Config{
		RetryDelay:    10 * time.Second,
		MaxRetryDelay: time.Minute,
	}

	require.Equal(t, 10*time.Second, cfg.retryDelay(1))
	require.Equal(t, 20*time.Second, cfg.retryDelay(2))
	require.Equal(t, 40*time.Second, cfg.retryDelay(3))
	require.Equal(t, time.Minute, cfg.retryDelay(4))
	require.Equal(t, time.Minute, cfg.retryDelay(30))
}
