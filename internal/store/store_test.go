package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roasbeef/p4review/internal/db"
	"github.com/roasbeef/p4review/internal/project"
	"github.com/stretchr/testify/require"
)

// newSqlcStore opens a migrated sqlite store in a temp dir.
func newSqlcStore(t *testing.T) *SqlcStore {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbStore, err := db.Open(filepath.Join(t.TempDir(), "store.db"), log)
	require.NoError(t, err)

	s := NewSqlcStore(dbStore)
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// forEachStore runs the test body against both Storage implementations.
func forEachStore(t *testing.T, body func(t *testing.T, s Storage)) {
	t.Run("mock", func(t *testing.T) {
		body(t, NewMockStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		body(t, newSqlcStore(t))
	})
}

func newRecord(id int64, author string) ReviewRecord {
	return ReviewRecord{
		ID:     id,
		Author: author,
		State:  "needsReview",
		Token:  "token",
		Data:   []byte(`{"id":1}`),
	}
}

func TestReviewLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		_, err := s.GetReview(ctx, 2)
		require.ErrorIs(t, err, ErrNotFound)

		rec, err := s.InsertReview(ctx, newRecord(2, "alice"))
		require.NoError(t, err)
		require.Equal(t, int64(1), rec.Revision)

		_, err = s.InsertReview(ctx, newRecord(2, "bob"))
		require.ErrorIs(t, err, ErrConflict)

		rec.State = "approved"
		rec.Pending = true
		updated, err := s.UpdateReview(ctx, rec)
		require.NoError(t, err)
		require.Equal(t, int64(2), updated.Revision)

		// The first copy is now stale.
		_, err = s.UpdateReview(ctx, rec)
		require.ErrorIs(t, err, ErrConflict)

		got, err := s.GetReview(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, "approved", got.State)
		require.True(t, got.Pending)
		require.JSONEq(t, `{"id":1}`, string(got.Data))

		missing := newRecord(99, "x")
		missing.Revision = 1
		_, err = s.UpdateReview(ctx, missing)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListReviewsAndChanges(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		for i, author := range []string{"alice", "bob", "alice"} {
			_, err := s.InsertReview(
				ctx, newRecord(int64(10+i), author),
			)
			require.NoError(t, err)
		}

		all, err := s.ListReviews(ctx, ReviewFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, int64(12), all[0].ID)

		alice, err := s.ListReviews(ctx, ReviewFilter{Author: "alice"})
		require.NoError(t, err)
		require.Len(t, alice, 2)

		limited, err := s.ListReviews(ctx, ReviewFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)

		require.NoError(t, s.AddReviewChange(ctx, 10, 9))
		require.NoError(t, s.AddReviewChange(ctx, 10, 9))
		require.NoError(t, s.AddReviewChange(ctx, 11, 9))

		ids, err := s.ReviewsByChange(ctx, 9)
		require.NoError(t, err)
		require.Equal(t, []int64{10, 11}, ids)

		ids, err = s.ReviewsByChange(ctx, 8)
		require.NoError(t, err)
		require.Empty(t, ids)
	})
}

func TestFileInfo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		_, err := s.InsertReview(ctx, newRecord(3, "alice"))
		require.NoError(t, err)

		_, err = s.GetFileInfo(ctx, 3, "//depot/a.txt")
		require.ErrorIs(t, err, ErrNotFound)

		fi, err := s.SaveFileInfo(ctx, FileInfo{
			ReviewID:  3,
			DepotFile: "//depot/a.txt",
			ReadBy: map[string]ReadMark{
				"nonadmin": {Version: 1, Digest: "ABC"},
			},
		})
		require.NoError(t, err)
		require.Equal(t, ReadMark{Version: 1, Digest: "ABC"},
			fi.ReadBy["nonadmin"])

		fi.ReadBy = nil
		_, err = s.SaveFileInfo(ctx, fi)
		require.NoError(t, err)

		got, err := s.GetFileInfo(ctx, 3, "//depot/a.txt")
		require.NoError(t, err)
		require.Empty(t, got.ReadBy)
		require.NotNil(t, got.ReadBy)

		list, err := s.ListFileInfo(ctx, 3)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})
}

func TestProjects(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		p := project.Project{
			ID:      "web",
			Name:    "Web",
			Members: []string{"alice"},
			Branches: []project.Branch{{
				ID:         "main",
				Name:       "Main",
				Paths:      []string{"//depot/web/..."},
				Moderators: []string{"mod"},
			}},
		}
		require.NoError(t, s.SaveProject(ctx, p))

		got, err := s.GetProject(ctx, "web")
		require.NoError(t, err)
		require.Equal(t, p, got)

		p.Description = "updated"
		require.NoError(t, s.SaveProject(ctx, p))

		all, err := s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "updated", all[0].Description)

		require.NoError(t, s.DeleteProject(ctx, "web"))
		require.ErrorIs(t, s.DeleteProject(ctx, "web"), ErrNotFound)

		_, err = s.GetProject(ctx, "web")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestActivities(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := s.CreateActivity(ctx, CreateActivityParams{
				Type:     "review",
				User:     "alice",
				Action:   "voted up",
				Target:   "review 5",
				ReviewID: int64(5 + i%2),
			})
			require.NoError(t, err)
		}

		recent, err := s.ListRecentActivities(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		require.Greater(t, recent[0].ID, recent[1].ID)

		byReview, err := s.ListActivitiesByReview(ctx, 5, 10)
		require.NoError(t, err)
		require.Len(t, byReview, 2)

		n, err := s.DeleteOldActivities(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
	})
}

func TestWithTxJoins(t *testing.T) {
	s := newSqlcStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		if _, err := tx.InsertReview(ctx, newRecord(4, "a")); err != nil {
			return err
		}

		// Nested calls share the outer transaction.
		return tx.WithTx(ctx, func(ctx context.Context, tx Storage) error {
			return tx.AddReviewChange(ctx, 4, 3)
		})
	})
	require.NoError(t, err)

	ids, err := s.ReviewsByChange(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{4}, ids)
}
