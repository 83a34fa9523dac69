package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

func newStore(t *testing.T) *ProjectStore {
	t.Helper()
	s, err := NewProjectStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func project(id string) scraping.Project {
	return scraping.Project{
		ID:         id,
		Name:       "name-" + id,
		TargetURL:  "https://example.com/" + id,
		Intent:     "intent",
		Status:     scraping.StatusActive,
		Health:     100,
		LastRun:    "never",
		SpiderCode: "x=1",
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestAddListMostRecentFirst(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, project("a")))
	require.NoError(t, s.Add(ctx, project("b")))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "a", list[1].ID)
	require.Equal(t, project("a"), list[1])
}

func TestAddRejectsDuplicate(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, project("a")))
	err := s.Add(ctx, project("a"))
	require.True(t, errors.Is(err, scraping.ErrDuplicateID))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUpdatesTouchOnlyMatchingRow(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, project("a")))
	require.NoError(t, s.Add(ctx, project("b")))

	ok, err := s.UpdateStatus(ctx, "a", scraping.StatusPaused)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.UpdateCode(ctx, "a", "y=2")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.UpdateDriveSetting(ctx, "a", true)
	require.NoError(t, err)
	require.True(t, ok)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scraping.StatusPaused, a.Status)
	require.Equal(t, "y=2", a.SpiderCode)
	require.True(t, a.GoogleDriveEnabled)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, project("b"), b)
}

func TestUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, project("a")))

	ok, err := s.UpdateStatus(ctx, "zzz", scraping.StatusFailed)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Get(ctx, "zzz")
	require.True(t, errors.Is(err, scraping.ErrProjectNotFound))

	_, err = s.UpdateStatus(ctx, "a", scraping.Status("nope"))
	require.True(t, errors.Is(err, scraping.ErrInvalidStatus))
}

func TestFileBackedStorePersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "projects.db")
	ctx := context.Background()
	s, err := NewProjectStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, project("a")))
	require.NoError(t, s.Close())

	reopened, err := NewProjectStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "name-a", got.Name)
}
