package bookmark

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahyar-osn/vis-tools/internal/camera"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bookmarks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var gulfView = camera.Snapshot{
	Position:    camera.Position{X: -296_000.25, Y: -5_600_000.5, Z: 3_000_000.125},
	Orientation: camera.Orientation{Heading: 0.1, Pitch: -1.2, Roll: 0},
}

func TestSaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &Bookmark{
		Name:     "  Gulf overview ",
		Camera:   gulfView,
		Layers:   map[string]bool{"stormTracks": true, "buoys": false},
		Timestep: 4,
	}
	require.NoError(t, s.Save(ctx, b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.False(t, b.CreatedAt.IsZero())
	assert.Equal(t, "Gulf overview", b.Name)

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "Gulf overview", got.Name)
	assert.Equal(t, gulfView, got.Camera)
	assert.Equal(t, b.Layers, got.Layers)
	assert.Equal(t, 4, got.Timestep)
	assert.Equal(t, b.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &Bookmark{Name: "first", Camera: gulfView}
	require.NoError(t, s.Save(ctx, b))

	b.Name = "renamed"
	b.Timestep = 7
	require.NoError(t, s.Save(ctx, b))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "renamed", all[0].Name)
	assert.Equal(t, 7, all[0].Timestep)
}

func TestSaveValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Save(ctx, &Bookmark{Name: " "}), ErrInvalid)
	assert.ErrorIs(t, s.Save(ctx, &Bookmark{Name: "x", Timestep: -1}), ErrInvalid)

	bad := gulfView
	bad.Position.X = math.NaN()
	assert.ErrorIs(t, s.Save(ctx, &Bookmark{Name: "x", Camera: bad}), ErrInvalid)
}

func TestListOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &Bookmark{Name: "later", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Save(ctx, &Bookmark{Name: "earlier", CreatedAt: base}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "earlier", all[0].Name)
	assert.Equal(t, "later", all[1].Name)
	assert.NotNil(t, all[0].Layers)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &Bookmark{Name: "gone soon", Camera: gulfView}
	require.NoError(t, s.Save(ctx, b))
	require.NoError(t, s.Delete(ctx, b.ID))

	_, err := s.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, b.ID), ErrNotFound)
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), &Bookmark{Name: "mem"}))
	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
