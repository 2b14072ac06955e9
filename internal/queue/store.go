package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/p4review/internal/db"
	"github.com/roasbeef/p4review/internal/db/sqlc"
)

// Store is the durable task queue. It shares the review database and runs
// every operation through the db.Store transaction executor.
type Store struct {
	dbStore *db.Store
	cfg     Config
	now     func() time.Time
}

// NewStore creates a task queue over an open database.
func NewStore(dbStore *db.Store, cfg Config) *Store {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = max(defaults.MaxRetryDelay, cfg.RetryDelay)
	}

	return &Store{
		dbStore: dbStore,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Enqueue adds a task of the given type for subject. The payload is stored
// as JSON.
func (s *Store) Enqueue(ctx context.Context, typ TaskType, subject string,
	payload any) (Task, error) {

	if _, err := ParseTaskType(string(typ)); err != nil {
		return Task{}, err
	}

	data, err := MarshalPayload(payload)
	if err != nil {
		return Task{}, err
	}

	var task Task
	err = s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		now := s.now().Unix()
		row, err := q.EnqueueTask(ctx, sqlc.EnqueueTaskParams{
			TaskType:  string(typ),
			Subject:   subject,
			DataJson:  data,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("enqueue task: %w", err)
		}

		task = TaskFromSqlc(row)

		return nil
	})
	if err != nil {
		return Task{}, err
	}

	tasksEnqueued.WithLabelValues(string(typ)).Inc()

	return task, nil
}

// Claim marks the oldest pending task as running and returns it. None is
// returned when the queue is empty.
func (s *Store) Claim(ctx context.Context) (fn.Option[Task], error) {
	var task fn.Option[Task]

	err := s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		row, err := q.ClaimNextTask(ctx, s.now().Unix())
		switch {
		case errors.Is(err, sql.ErrNoRows):
			task = fn.None[Task]()
			return nil

		case err != nil:
			return fmt.Errorf("claim task: %w", err)
		}

		task = fn.Some(TaskFromSqlc(row))

		return nil
	})

	return task, err
}

// MarkDone records that a task was processed.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	return s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		return q.MarkTaskDone(ctx, sqlc.MarkTaskDoneParams{
			UpdatedAt: s.now().Unix(),
			ID:        id,
		})
	})
}

// MarkFailed records a failed attempt. The task goes back to pending until
// it has used up MaxAttempts, after which it stays failed. A pending task
// is not claimed again before its retry delay has passed.
func (s *Store) MarkFailed(ctx context.Context, id int64,
	cause error) error {

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	return s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		row, err := q.GetTask(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
		}
		if err != nil {
			return err
		}

		now := s.now()
		delay := s.cfg.retryDelay(int(row.Attempts))

		return q.MarkTaskFailed(ctx, sqlc.MarkTaskFailedParams{
			MaxAttempts: int64(s.cfg.MaxAttempts),
			LastError: sql.NullString{
				String: msg,
				Valid:  msg != "",
			},
			AvailableAt: now.Add(delay).Unix(),
			UpdatedAt:   now.Unix(),
			ID:          id,
		})
	})
}

// Get returns a single task.
func (s *Store) Get(ctx context.Context, id int64) (Task, error) {
	var task Task

	err := s.dbStore.WithReadTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		row, err := q.GetTask(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
		}
		if err != nil {
			return err
		}

		task = TaskFromSqlc(row)

		return nil
	})

	return task, err
}

// List returns tasks with the given status, oldest first. A non-positive
// limit returns all of them.
func (s *Store) List(ctx context.Context, status Status,
	limit int) ([]Task, error) {

	if limit <= 0 {
		limit = -1
	}

	var tasks []Task
	err := s.dbStore.WithReadTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		rows, err := q.ListTasksByStatus(ctx, sqlc.ListTasksByStatusParams{
			Status: string(status),
			Limit:  int64(limit),
		})
		if err != nil {
			return err
		}

		tasks = make([]Task, len(rows))
		for i, row := range rows {
			tasks[i] = TaskFromSqlc(row)
		}

		return nil
	})

	return tasks, err
}

// Stats returns aggregate counts for the queue.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.dbStore.WithReadTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		row, err := q.GetTaskStats(ctx)
		if err != nil {
			return err
		}

		stats = StatsFromSqlc(row)

		return nil
	})

	return stats, err
}

// Count returns the number of pending tasks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64

	err := s.dbStore.WithReadTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		var err error
		count, err = q.CountPendingTasks(ctx)
		return err
	})

	return count, err
}

// PurgeDone deletes finished tasks last touched before the cutoff.
func (s *Store) PurgeDone(ctx context.Context,
	olderThan time.Duration) (int64, error) {

	var purged int64

	err := s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		var err error
		purged, err = q.PurgeDoneTasks(
			ctx, s.now().Add(-olderThan).Unix(),
		)
		return err
	})

	return purged, err
}

// ResetRunning puts tasks left running by a crashed worker back to pending.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	var reset int64

	err := s.dbStore.WithTx(ctx, func(
		ctx context.Context, q *sqlc.Queries,
	) error {
		var err error
		reset, err = q.ResetRunningTasks(ctx, s.now().Unix())
		return err
	})

	return reset, err
}
