package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roasbeef/p4review/internal/db/sqlc"
)

// TaskType names the kind of work a task carries.
type TaskType string

const (
	// TaskShelve is queued when a change is shelved.
	TaskShelve TaskType = "shelve"

	// TaskCommit is queued when a change is submitted.
	TaskCommit TaskType = "commit"

	// TaskReview is queued after a review was created or modified.
	TaskReview TaskType = "review"

	// TaskChange is queued when a change form is edited.
	TaskChange TaskType = "change"

	// TaskJob, TaskUser and TaskGroup are queued when those specs change.
	TaskJob   TaskType = "job"
	TaskUser  TaskType = "user"
	TaskGroup TaskType = "group"

	// TaskComment is queued when a comment is posted.
	TaskComment TaskType = "comment"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{
	TaskShelve, TaskCommit, TaskReview, TaskChange, TaskJob, TaskUser,
	TaskGroup, TaskComment,
}

// ParseTaskType validates s as a task type.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
}

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task is one queued unit of work.
type Task struct {
	ID        int64           `json:"id"`
	Type      TaskType        `json:"type"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data,omitempty"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	// AvailableAt is the earliest time a pending task is claimed.
	AvailableAt time.Time `json:"availableAt"`
}

// Stats holds aggregate counts for the queue.
type Stats struct {
	Pending       int64      `json:"pending"`
	Running       int64      `json:"running"`
	Done          int64      `json:"done"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldestPending,omitempty"`
}

// Config holds queue settings.
type Config struct {
	// MaxAttempts is how many times a task is tried before it is parked
	// as failed.
	MaxAttempts int

	// RetryDelay is how long a failed task waits before it can be
	// claimed again. The wait doubles per attempt up to MaxRetryDelay.
	RetryDelay time.Duration

	// MaxRetryDelay caps the retry wait.
	MaxRetryDelay time.Duration
}

// DefaultConfig returns the default queue settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 15 * time.Minute,
	}
}

// retryDelay returns the wait after the given number of attempts.
func (c Config) retryDelay(attempts int) time.Duration {
	delay := c.RetryDelay
	for i := 1; i < attempts && delay < c.MaxRetryDelay; i++ {
		delay *= 2
	}

	return min(delay, c.MaxRetryDelay)
}

var (
	// ErrUnknownTaskType is returned for task types outside TaskTypes.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrTaskNotFound is returned by Get for a missing task.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskFromSqlc converts a sqlc task row.
func TaskFromSqlc(row sqlc.Task) Task {
	t := Task{
		ID:        row.ID,
		Type:      TaskType(row.TaskType),
		Subject:   row.Subject,
		Data:      json.RawMessage(row.DataJson),
		Status:    Status(row.Status),
		Attempts:  int(row.Attempts),
		CreatedAt: time.Unix(row.CreatedAt, 0),
		UpdatedAt: time.Unix(row.UpdatedAt, 0),

		AvailableAt: time.Unix(row.AvailableAt, 0),
	}
	if row.LastError.Valid {
		t.LastError = row.LastError.String
	}

	return t
}

// StatsFromSqlc converts the aggregate row.
func StatsFromSqlc(row sqlc.GetTaskStatsRow) Stats {
	stats := Stats{
		Pending: row.Pending,
		Running: row.Running,
		Done:    row.Done,
		Failed:  row.Failed,
	}
	if row.Pending > 0 && row.OldestPendingAt > 0 {
		oldest := time.Unix(row.OldestPendingAt, 0)
		stats.OldestPending = &oldest
	}

	return stats
}
