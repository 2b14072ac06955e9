package store

import (
	"context"
	"errors"
	"time"

	"github.com/roasbeef/p4review/internal/project"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a save races with another writer, or an
	// insert collides with an existing record.
	ErrConflict = errors.New("record changed concurrently")
)

// ReviewRecord is the persisted form of a review. The full document lives in
// Data; the other fields are the indexed columns.
type ReviewRecord struct {
	ID       int64
	Author   string
	State    string
	Pending  bool
	Token    string
	Data     []byte
	Revision int64
	Created  time.Time
	Updated  time.Time
}

// ReviewFilter narrows ListReviews. Empty fields match everything.
type ReviewFilter struct {
	State  string
	Author string
	Limit  int
}

// ReviewStore persists review documents.
type ReviewStore interface {
	// InsertReview stores a new review at revision 1.
	InsertReview(ctx context.Context, r ReviewRecord) (ReviewRecord, error)

	// GetReview fetches a review by id.
	GetReview(ctx context.Context, id int64) (ReviewRecord, error)

	// UpdateReview saves r if the stored revision still equals r.Revision
	// and returns the record with its new revision. A stale revision yields
	// ErrConflict.
	UpdateReview(ctx context.Context, r ReviewRecord) (ReviewRecord, error)

	// ListReviews returns reviews newest first.
	ListReviews(ctx context.Context, f ReviewFilter) ([]ReviewRecord, error)

	// AddReviewChange associates a change with a review. Repeats are
	// ignored.
	AddReviewChange(ctx context.Context, reviewID, change int64) error

	// ReviewsByChange returns the ids of reviews the change belongs to.
	ReviewsByChange(ctx context.Context, change int64) ([]int64, error)
}

// ReadMark records which version of a file a user has read.
type ReadMark struct {
	Version int    `json:"version"`
	Digest  string `json:"digest"`
}

// FileInfo holds per-file review state.
type FileInfo struct {
	ReviewID  int64               `json:"review"`
	DepotFile string              `json:"depotFile"`
	ReadBy    map[string]ReadMark `json:"readBy"`
	Updated   time.Time           `json:"-"`
}

// FileInfoStore persists file read state.
type FileInfoStore interface {
	// GetFileInfo returns ErrNotFound until the file was first toggled.
	GetFileInfo(ctx context.Context, reviewID int64,
		depotFile string) (FileInfo, error)

	// SaveFileInfo creates or replaces the file's read state.
	SaveFileInfo(ctx context.Context, fi FileInfo) (FileInfo, error)

	// ListFileInfo returns every tracked file of a review.
	ListFileInfo(ctx context.Context, reviewID int64) ([]FileInfo, error)
}

// ProjectStore persists project definitions.
type ProjectStore interface {
	SaveProject(ctx context.Context, p project.Project) error
	GetProject(ctx context.Context, id string) (project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// Activity is one entry of the activity stream.
type Activity struct {
	ID          int64
	Type        string
	User        string
	Action      string
	Target      string
	ReviewID    int64
	Change      int64
	Description string
	Created     time.Time
}

// CreateActivityParams contains the fields for a new activity entry.
type CreateActivityParams struct {
	Type        string
	User        string
	Action      string
	Target      string
	ReviewID    int64
	Change      int64
	Description string
}

// ActivityStore handles activity stream persistence.
type ActivityStore interface {
	// CreateActivity records a new activity entry.
	CreateActivity(ctx context.Context,
		params CreateActivityParams) (Activity, error)

	// ListRecentActivities lists the most recent entries.
	ListRecentActivities(ctx context.Context, limit int) ([]Activity, error)

	// ListActivitiesByReview lists entries attached to a review.
	ListActivitiesByReview(ctx context.Context, reviewID int64,
		limit int) ([]Activity, error)

	// DeleteOldActivities removes entries created before olderThan.
	DeleteOldActivities(ctx context.Context,
		olderThan time.Time) (int64, error)
}

// Storage combines all store interfaces for unified access.
type Storage interface {
	ReviewStore
	FileInfoStore
	ProjectStore
	ActivityStore

	// WithTx executes fn within a write transaction. Calls made on the
	// Storage passed to fn join that transaction.
	WithTx(ctx context.Context,
		fn func(ctx context.Context, s Storage) error) error

	// Close releases the store.
	Close() error
}
