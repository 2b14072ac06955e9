package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roasbeef/p4review/internal/db"
	"github.com/roasbeef/p4review/internal/db/sqlc"
	"github.com/roasbeef/p4review/internal/project"
)

// SqlcStore implements Storage over the sqlite database.
type SqlcStore struct {
	db      *db.Store
	queries *sqlc.Queries
	inTx    bool

	now func() time.Time
}

// NewSqlcStore creates a SqlcStore wrapping an opened database.
func NewSqlcStore(dbStore *db.Store) *SqlcStore {
	return &SqlcStore{
		db:      dbStore,
		queries: dbStore.Querier(),
		now:     time.Now,
	}
}

// Close closes the underlying database.
func (s *SqlcStore) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction. Nested calls reuse the
// outer transaction.
func (s *SqlcStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, st Storage) error) error {

	if s.inTx {
		return fn(ctx, s)
	}

	return s.db.WithTx(ctx, func(ctx context.Context, q *sqlc.Queries) error {
		return fn(ctx, &SqlcStore{
			db:      s.db,
			queries: q,
			inTx:    true,
			now:     s.now,
		})
	})
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if errors.Is(db.MapSQLError(err), db.ErrUniqueViolation) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	return err
}

// ReviewStore implementation.

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func reviewFromSqlc(r sqlc.Review) ReviewRecord {
	return ReviewRecord{
		ID:       r.ID,
		Author:   r.Author,
		State:    r.State,
		Pending:  r.Pending != 0,
		Token:    r.Token,
		Data:     []byte(r.DataJson),
		Revision: r.Revision,
		Created:  time.Unix(r.CreatedAt, 0),
		Updated:  time.Unix(r.UpdatedAt, 0),
	}
}

// InsertReview stores a new review.
func (s *SqlcStore) InsertReview(ctx context.Context,
	r ReviewRecord) (ReviewRecord, error) {

	now := s.now().Unix()
	created := now
	if !r.Created.IsZero() {
		created = r.Created.Unix()
	}

	row, err := s.queries.InsertReview(ctx, sqlc.InsertReviewParams{
		ID:        r.ID,
		Author:    r.Author,
		State:     r.State,
		Pending:   boolToInt(r.Pending),
		Token:     r.Token,
		DataJson:  string(r.Data),
		CreatedAt: created,
		UpdatedAt: now,
	})
	if err != nil {
		return ReviewRecord{}, fmt.Errorf("failed to insert review "+
			"%d: %w", r.ID, mapErr(err))
	}

	return reviewFromSqlc(row), nil
}

// GetReview fetches a review by id.
func (s *SqlcStore) GetReview(ctx context.Context,
	id int64) (ReviewRecord, error) {

	row, err := s.queries.GetReview(ctx, id)
	if err != nil {
		return ReviewRecord{}, fmt.Errorf("failed to get review %d: %w",
			id, mapErr(err))
	}

	return reviewFromSqlc(row), nil
}

// UpdateReview performs the optimistic save.
func (s *SqlcStore) UpdateReview(ctx context.Context,
	r ReviewRecord) (ReviewRecord, error) {

	now := s.now()
	n, err := s.queries.UpdateReview(ctx, sqlc.UpdateReviewParams{
		Author:    r.Author,
		State:     r.State,
		Pending:   boolToInt(r.Pending),
		Token:     r.Token,
		DataJson:  string(r.Data),
		UpdatedAt: now.Unix(),
		ID:        r.ID,
		Revision:  r.Revision,
	})
	if err != nil {
		return ReviewRecord{}, fmt.Errorf("failed to update review "+
			"%d: %w", r.ID, mapErr(err))
	}

	if n == 0 {
		if _, err := s.queries.GetReview(ctx, r.ID); err != nil {
			return ReviewRecord{}, fmt.Errorf("failed to update "+
				"review %d: %w", r.ID, mapErr(err))
		}

		return ReviewRecord{}, fmt.Errorf("review %d at revision %d: %w",
			r.ID, r.Revision, ErrConflict)
	}

	r.Revision++
	r.Updated = time.Unix(now.Unix(), 0)

	return r, nil
}

// ListReviews returns reviews newest first.
func (s *SqlcStore) ListReviews(ctx context.Context,
	f ReviewFilter) ([]ReviewRecord, error) {

	limit := int64(f.Limit)
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.queries.ListReviews(ctx, sqlc.ListReviewsParams{
		State:  ToSqlcNullString(f.State),
		Author: ToSqlcNullString(f.Author),
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	reviews := make([]ReviewRecord, len(rows))
	for i, r := range rows {
		reviews[i] = reviewFromSqlc(r)
	}

	return reviews, nil
}

// AddReviewChange associates a change with a review.
func (s *SqlcStore) AddReviewChange(ctx context.Context,
	reviewID, change int64) error {

	err := s.queries.AddReviewChange(ctx, sqlc.AddReviewChangeParams{
		ReviewID: reviewID,
		ChangeID: change,
	})
	if err != nil {
		return fmt.Errorf("failed to link change %d to review %d: %w",
			change, reviewID, mapErr(err))
	}

	return nil
}

// ReviewsByChange returns the reviews a change belongs to.
func (s *SqlcStore) ReviewsByChange(ctx context.Context,
	change int64) ([]int64, error) {

	ids, err := s.queries.ListReviewIDsByChange(ctx, change)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for change "+
			"%d: %w", change, err)
	}

	return ids, nil
}

// FileInfoStore implementation.

func fileInfoFromSqlc(r sqlc.FileInfo) (FileInfo, error) {
	fi := FileInfo{
		ReviewID:  r.ReviewID,
		DepotFile: r.DepotFile,
		ReadBy:    make(map[string]ReadMark),
		Updated:   time.Unix(r.UpdatedAt, 0),
	}
	if err := json.Unmarshal([]byte(r.ReadByJson), &fi.ReadBy); err != nil {
		return FileInfo{}, fmt.Errorf("corrupt read state for %s: %w",
			r.DepotFile, err)
	}

	return fi, nil
}

// GetFileInfo fetches the read state of one file.
func (s *SqlcStore) GetFileInfo(ctx context.Context, reviewID int64,
	depotFile string) (FileInfo, error) {

	row, err := s.queries.GetFileInfo(ctx, sqlc.GetFileInfoParams{
		ReviewID:  reviewID,
		DepotFile: depotFile,
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to get file info %s: %w",
			depotFile, mapErr(err))
	}

	return fileInfoFromSqlc(row)
}

// SaveFileInfo creates or replaces the read state of one file.
func (s *SqlcStore) SaveFileInfo(ctx context.Context,
	fi FileInfo) (FileInfo, error) {

	readBy := fi.ReadBy
	if readBy == nil {
		readBy = map[string]ReadMark{}
	}
	data, err := json.Marshal(readBy)
	if err != nil {
		return FileInfo{}, err
	}

	row, err := s.queries.UpsertFileInfo(ctx, sqlc.UpsertFileInfoParams{
		ReviewID:   fi.ReviewID,
		DepotFile:  fi.DepotFile,
		ReadByJson: string(data),
		UpdatedAt:  s.now().Unix(),
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to save file info %s: %w",
			fi.DepotFile, mapErr(err))
	}

	return fileInfoFromSqlc(row)
}

// ListFileInfo returns every tracked file of a review.
func (s *SqlcStore) ListFileInfo(ctx context.Context,
	reviewID int64) ([]FileInfo, error) {

	rows, err := s.queries.ListFileInfoByReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file info: %w", err)
	}

	infos := make([]FileInfo, 0, len(rows))
	for _, r := range rows {
		fi, err := fileInfoFromSqlc(r)
		if err != nil {
			return nil, err
		}
		infos = append(infos, fi)
	}

	return infos, nil
}

// ProjectStore implementation.

func projectFromSqlc(r sqlc.Project) (project.Project, error) {
	p := project.Project{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
	if err := json.Unmarshal([]byte(r.MembersJson), &p.Members); err != nil {
		return project.Project{}, fmt.Errorf("corrupt members for "+
			"project %s: %w", r.ID, err)
	}
	err := json.Unmarshal([]byte(r.BranchesJson), &p.Branches)
	if err != nil {
		return project.Project{}, fmt.Errorf("corrupt branches for "+
			"project %s: %w", r.ID, err)
	}

	return p, nil
}

// SaveProject creates or replaces a project.
func (s *SqlcStore) SaveProject(ctx context.Context, p project.Project) error {
	members, err := json.Marshal(nonNil(p.Members))
	if err != nil {
		return err
	}
	branches := p.Branches
	if branches == nil {
		branches = []project.Branch{}
	}
	branchData, err := json.Marshal(branches)
	if err != nil {
		return err
	}

	now := s.now().Unix()
	_, err = s.queries.UpsertProject(ctx, sqlc.UpsertProjectParams{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		MembersJson:  string(members),
		BranchesJson: string(branchData),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID,
			mapErr(err))
	}

	return nil
}

// GetProject fetches a project by id.
func (s *SqlcStore) GetProject(ctx context.Context,
	id string) (project.Project, error) {

	row, err := s.queries.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, fmt.Errorf("failed to get project "+
			"%s: %w", id, mapErr(err))
	}

	return projectFromSqlc(row)
}

// ListProjects returns all projects ordered by id.
func (s *SqlcStore) ListProjects(ctx context.Context) ([]project.Project,
	error) {

	rows, err := s.queries.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		p, err := projectFromSqlc(r)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, nil
}

// DeleteProject removes a project.
func (s *SqlcStore) DeleteProject(ctx context.Context, id string) error {
	n, err := s.queries.DeleteProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	return nil
}

// ActivityStore implementation.

// CreateActivity records a new activity entry.
func (s *SqlcStore) CreateActivity(ctx context.Context,
	params CreateActivityParams) (Activity, error) {

	row, err := s.queries.CreateActivity(ctx, sqlc.CreateActivityParams{
		ActivityType: params.Type,
		UserID:       params.User,
		Action:       params.Action,
		Target:       params.Target,
		ReviewID:     ToSqlcNullInt64(params.ReviewID),
		ChangeID:     ToSqlcNullInt64(params.Change),
		Description:  params.Description,
		CreatedAt:    s.now().Unix(),
	})
	if err != nil {
		return Activity{}, fmt.Errorf("failed to create activity: %w",
			err)
	}

	return ActivityFromSqlc(row), nil
}

// ListRecentActivities lists the most recent entries.
func (s *SqlcStore) ListRecentActivities(ctx context.Context,
	limit int) ([]Activity, error) {

	rows, err := s.queries.ListRecentActivities(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activities: %w",
			err)
	}

	activities := make([]Activity, len(rows))
	for i, r := range rows {
		activities[i] = ActivityFromSqlc(r)
	}
	return activities, nil
}

// ListActivitiesByReview lists entries for one review.
func (s *SqlcStore) ListActivitiesByReview(ctx context.Context,
	reviewID int64, limit int) ([]Activity, error) {

	rows, err := s.queries.ListActivitiesByReview(
		ctx, sqlc.ListActivitiesByReviewParams{
			ReviewID: ToSqlcNullInt64(reviewID),
			Limit:    int64(limit),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list review activities: %w",
			err)
	}

	activities := make([]Activity, len(rows))
	for i, r := range rows {
		activities[i] = ActivityFromSqlc(r)
	}
	return activities, nil
}

// DeleteOldActivities removes entries older than the given time.
func (s *SqlcStore) DeleteOldActivities(ctx context.Context,
	olderThan time.Time) (int64, error) {

	n, err := s.queries.DeleteOldActivities(ctx, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activities: %w", err)
	}
	return n, nil
}

var _ Storage = (*SqlcStore)(nil)
