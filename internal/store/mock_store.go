package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roasbeef/p4review/internal/project"
)

// MockStore provides an in-memory implementation of Storage for tests. All
// data is kept in maps guarded by a mutex.
type MockStore struct {
	mu sync.RWMutex

	reviews       map[int64]ReviewRecord
	reviewChanges map[int64]map[int64]struct{} // [change][review]
	fileInfo      map[int64]map[string]FileInfo
	projects      map[string]project.Project
	activities    []Activity

	nextActivityID int64
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		reviews:        make(map[int64]ReviewRecord),
		reviewChanges:  make(map[int64]map[int64]struct{}),
		fileInfo:       make(map[int64]map[string]FileInfo),
		projects:       make(map[string]project.Project),
		nextActivityID: 1,
	}
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// WithTx runs fn directly against the mock.
func (m *MockStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, m)
}

func cloneRecord(r ReviewRecord) ReviewRecord {
	r.Data = append([]byte(nil), r.Data...)
	return r
}

// InsertReview stores a new review.
func (m *MockStore) InsertReview(_ context.Context,
	r ReviewRecord) (ReviewRecord, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reviews[r.ID]; ok {
		return ReviewRecord{}, fmt.Errorf("review %d exists: %w", r.ID,
			ErrConflict)
	}

	now := time.Now().Truncate(time.Second)
	if r.Created.IsZero() {
		r.Created = now
	}
	r.Updated = now
	r.Revision = 1
	m.reviews[r.ID] = cloneRecord(r)

	return cloneRecord(r), nil
}

// GetReview fetches a review by id.
func (m *MockStore) GetReview(_ context.Context,
	id int64) (ReviewRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reviews[id]
	if !ok {
		return ReviewRecord{}, fmt.Errorf("review %d: %w", id,
			ErrNotFound)
	}

	return cloneRecord(r), nil
}

// UpdateReview saves r if its revision is current.
func (m *MockStore) UpdateReview(_ context.Context,
	r ReviewRecord) (ReviewRecord, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.reviews[r.ID]
	if !ok {
		return ReviewRecord{}, fmt.Errorf("review %d: %w", r.ID,
			ErrNotFound)
	}
	if cur.Revision != r.Revision {
		return ReviewRecord{}, fmt.Errorf("review %d at revision %d: %w",
			r.ID, r.Revision, ErrConflict)
	}

	r.Created = cur.Created
	r.Updated = time.Now().Truncate(time.Second)
	r.Revision++
	m.reviews[r.ID] = cloneRecord(r)

	return cloneRecord(r), nil
}

// ListReviews returns reviews newest first.
func (m *MockStore) ListReviews(_ context.Context,
	f ReviewFilter) ([]ReviewRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ReviewRecord
	for _, r := range m.reviews {
		if f.State != "" && r.State != f.State {
			continue
		}
		if f.Author != "" && r.Author != f.Author {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

// AddReviewChange associates a change with a review.
func (m *MockStore) AddReviewChange(_ context.Context,
	reviewID, change int64) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reviews[reviewID]; !ok {
		return fmt.Errorf("review %d: %w", reviewID, ErrNotFound)
	}
	if m.reviewChanges[change] == nil {
		m.reviewChanges[change] = make(map[int64]struct{})
	}
	m.reviewChanges[change][reviewID] = struct{}{}

	return nil
}

// ReviewsByChange returns the reviews a change belongs to.
func (m *MockStore) ReviewsByChange(_ context.Context,
	change int64) ([]int64, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id := range m.reviewChanges[change] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func cloneFileInfo(fi FileInfo) FileInfo {
	readBy := make(map[string]ReadMark, len(fi.ReadBy))
	for k, v := range fi.ReadBy {
		readBy[k] = v
	}
	fi.ReadBy = readBy

	return fi
}

// GetFileInfo fetches the read state of one file.
func (m *MockStore) GetFileInfo(_ context.Context, reviewID int64,
	depotFile string) (FileInfo, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	fi, ok := m.fileInfo[reviewID][depotFile]
	if !ok {
		return FileInfo{}, fmt.Errorf("file info %s: %w", depotFile,
			ErrNotFound)
	}

	return cloneFileInfo(fi), nil
}

// SaveFileInfo creates or replaces the read state of one file.
func (m *MockStore) SaveFileInfo(_ context.Context,
	fi FileInfo) (FileInfo, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fileInfo[fi.ReviewID] == nil {
		m.fileInfo[fi.ReviewID] = make(map[string]FileInfo)
	}
	fi = cloneFileInfo(fi)
	fi.Updated = time.Now().Truncate(time.Second)
	m.fileInfo[fi.ReviewID][fi.DepotFile] = fi

	return cloneFileInfo(fi), nil
}

// ListFileInfo returns every tracked file of a review.
func (m *MockStore) ListFileInfo(_ context.Context,
	reviewID int64) ([]FileInfo, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []FileInfo
	for _, fi := range m.fileInfo[reviewID] {
		out = append(out, cloneFileInfo(fi))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DepotFile < out[j].DepotFile
	})

	return out, nil
}

// SaveProject creates or replaces a project.
func (m *MockStore) SaveProject(_ context.Context, p project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.projects[p.ID] = p

	return nil
}

// GetProject fetches a project by id.
func (m *MockStore) GetProject(_ context.Context,
	id string) (project.Project, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return project.Project{}, fmt.Errorf("project %s: %w", id,
			ErrNotFound)
	}

	return p, nil
}

// ListProjects returns all projects ordered by id.
func (m *MockStore) ListProjects(_ context.Context) ([]project.Project,
	error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]project.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// DeleteProject removes a project.
func (m *MockStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	delete(m.projects, id)

	return nil
}

// CreateActivity records a new activity entry.
func (m *MockStore) CreateActivity(_ context.Context,
	params CreateActivityParams) (Activity, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	a := Activity{
		ID:          m.nextActivityID,
		Type:        params.Type,
		User:        params.User,
		Action:      params.Action,
		Target:      params.Target,
		ReviewID:    params.ReviewID,
		Change:      params.Change,
		Description: params.Description,
		Created:     time.Now(),
	}
	m.nextActivityID++
	m.activities = append(m.activities, a)

	return a, nil
}

// recentFirst returns the activities matching keep, newest first.
func (m *MockStore) recentFirst(limit int, keep func(Activity) bool) []Activity {
	var out []Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(m.activities[i]) {
			out = append(out, m.activities[i])
		}
	}

	return out
}

// ListRecentActivities lists the most recent entries.
func (m *MockStore) ListRecentActivities(_ context.Context,
	limit int) ([]Activity, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.recentFirst(limit, func(Activity) bool { return true }), nil
}

// ListActivitiesByReview lists entries for one review.
func (m *MockStore) ListActivitiesByReview(_ context.Context,
	reviewID int64, limit int) ([]Activity, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.recentFirst(limit, func(a Activity) bool {
		return a.ReviewID == reviewID
	}), nil
}

// DeleteOldActivities removes entries older than the given time.
func (m *MockStore) DeleteOldActivities(_ context.Context,
	olderThan time.Time) (int64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.activities[:0]
	var removed int64
	for _, a := range m.activities {
		if a.Created.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.activities = kept

	return removed, nil
}

var _ Storage = (*MockStore)(nil)
