package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/geofence"
	"github.com/ukydev/campus-transit/internal/models"
)

// MockRouteStore is a mock implementation of db.RouteStore
type MockRouteStore struct {
	mock.Mock
}

func (m *MockRouteStore) InsertRoute(ctx context.Context, route models.Route) (models.Route, error) {
	args := m.Called(ctx, route)
	if fn, ok := args.Get(0).(func(context.Context, models.Route) models.Route); ok {
		return fn(ctx, route), args.Error(1)
	}
	return args.Get(0).(models.Route), args.Error(1)
}

func (m *MockRouteStore) DeleteRoute(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRouteStore) FindRoutes(ctx context.Context) ([]models.Route, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Route), args.Error(1)
}

// MockCheckpointStore is a mock implementation of db.CheckpointStore
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) InsertCheckpoint(ctx context.Context, c models.Checkpoint) (models.Checkpoint, error) {
	args := m.Called(ctx, c)
	if fn, ok := args.Get(0).(func(context.Context, models.Checkpoint) models.Checkpoint); ok {
		return fn(ctx, c), args.Error(1)
	}
	return args.Get(0).(models.Checkpoint), args.Error(1)
}

func (m *MockCheckpointStore) DeleteCheckpoint(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCheckpointStore) FindCheckpoints(ctx context.Context) ([]models.Checkpoint, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Checkpoint), args.Error(1)
}

func newTestEditor() (*Editor, *MockRouteStore, *MockCheckpointStore, *geofence.Registry) {
	routes := new(MockRouteStore)
	checkpoints := new(MockCheckpointStore)
	reg := geofence.NewRegistry()
	return New(routes, checkpoints, reg), routes, checkpoints, reg
}

var (
	p1 = models.Coordinate{Lat: 26.5096, Lng: -100.1769}
	p2 = models.Coordinate{Lat: 26.5110, Lng: -100.1780}
	p3 = models.Coordinate{Lat: 26.5125, Lng: -100.1791}
)

func TestEditor_StartsIdle(t *testing.T) {
	ed, _, _, _ := newTestEditor()
	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Empty(t, ed.Points())
}

func TestEditor_CommitRouteKeepsClickOrder(t *testing.T) {
	ed, routes, _, reg := newTestEditor()
	routes.On("InsertRoute", mock.Anything, mock.MatchedBy(func(r models.Route) bool {
		return r.Name == "Ruta Norte" && r.Color == models.DefaultRouteColor
	})).Return(func(_ context.Context, r models.Route) models.Route {
		r.ID = "route-1"
		return r
	}, nil).Once()

	ed.BeginRoute()
	assert.Equal(t, ModeDrawingRoute, ed.Mode())
	for _, p := range []models.Coordinate{p1, p2, p3, p2} {
		require.NoError(t, ed.AddPoint(p))
	}

	route, err := ed.CommitRoute(context.Background(), "  Ruta Norte ", "")
	require.NoError(t, err)
	assert.Equal(t, "route-1", route.ID)
	assert.Equal(t, []models.Coordinate{p1, p2, p3, p2}, route.Points)
	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Empty(t, ed.Points())

	got, ok := reg.Route("route-1")
	require.True(t, ok)
	assert.Equal(t, route.Points, got.Points)
	routes.AssertExpectations(t)
}

func TestEditor_CommitRouteValidation(t *testing.T) {
	tests := []struct {
		name    string
		points  []models.Coordinate
		title   string
		wantErr error
	}{
		{"no points", nil, "Ruta", ErrTooFewPoints},
		{"one point", []models.Coordinate{p1}, "Ruta", ErrTooFewPoints},
		{"blank name", []models.Coordinate{p1, p2}, "   ", ErrNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed, routes, _, _ := newTestEditor()
			ed.BeginRoute()
			for _, p := range tt.points {
				require.NoError(t, ed.AddPoint(p))
			}

			_, err := ed.CommitRoute(context.Background(), tt.title, "#ff0000")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, ModeDrawingRoute, ed.Mode())
			assert.Equal(t, len(tt.points), len(ed.Points()))
			routes.AssertNotCalled(t, "InsertRoute", mock.Anything, mock.Anything)
		})
	}
}

func TestEditor_CommitRouteStoreFailureKeepsDrawing(t *testing.T) {
	ed, routes, _, reg := newTestEditor()
	routes.On("InsertRoute", mock.Anything, mock.Anything).Return(models.Route{}, errors.New("write failed")).Once()

	ed.BeginRoute()
	require.NoError(t, ed.AddPoint(p1))
	require.NoError(t, ed.AddPoint(p2))
	_, err := ed.CommitRoute(context.Background(), "Ruta", "")
	require.Error(t, err)

	assert.Equal(t, ModeDrawingRoute, ed.Mode())
	assert.Len(t, ed.Points(), 2)
	assert.Empty(t, reg.Routes())
}

func TestEditor_AddPointRequiresDrawing(t *testing.T) {
	ed, _, _, _ := newTestEditor()
	assert.ErrorIs(t, ed.AddPoint(p1), ErrInvalidMode)

	ed.BeginRoute()
	assert.ErrorIs(t, ed.AddPoint(models.Coordinate{Lat: 120, Lng: 0}), ErrInvalidPosition)
	assert.Empty(t, ed.Points())
}

func TestEditor_CancelRoute(t *testing.T) {
	ed, routes, _, _ := newTestEditor()
	assert.ErrorIs(t, ed.CancelRoute(), ErrInvalidMode)

	ed.BeginRoute()
	require.NoError(t, ed.AddPoint(p1))
	require.NoError(t, ed.CancelRoute())
	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Empty(t, ed.Points())
	_, err := ed.CommitRoute(context.Background(), "Ruta", "")
	assert.ErrorIs(t, err, ErrInvalidMode)
	routes.AssertNotCalled(t, "InsertRoute", mock.Anything, mock.Anything)
}

func TestEditor_PlaceCheckpoint(t *testing.T) {
	ed, _, checkpoints, reg := newTestEditor()
	reg.PutRoute(models.Route{ID: "route-1", Name: "Ruta Norte"})
	checkpoints.On("InsertCheckpoint", mock.Anything, mock.MatchedBy(func(c models.Checkpoint) bool {
		return c.Name == "Centro" && c.Type == models.CheckpointStop && c.RouteID == "route-1" && c.Position == p1
	})).Return(func(_ context.Context, c models.Checkpoint) models.Checkpoint {
		c.ID = "cp-1"
		return c
	}, nil).Once()

	require.NoError(t, ed.BeginCheckpoint(models.CheckpointStop, "route-1"))
	assert.Equal(t, ModePlacingCheckpoint, ed.Mode())
	snap := ed.Snapshot()
	assert.Equal(t, models.CheckpointStop, snap.CheckpointType)
	assert.Equal(t, "route-1", snap.RouteID)

	cp, err := ed.PlaceCheckpoint(context.Background(), "Centro", p1)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, ModeIdle, ed.Mode())

	scoped := reg.CheckpointsFor("route-1")
	require.Len(t, scoped, 1)
	assert.Equal(t, "cp-1", scoped[0].ID)
	assert.Empty(t, reg.CheckpointsFor("route-2"))
	checkpoints.AssertExpectations(t)
}

func TestEditor_PlaceCheckpointValidation(t *testing.T) {
	ed, _, checkpoints, _ := newTestEditor()

	_, err := ed.PlaceCheckpoint(context.Background(), "Centro", p1)
	assert.ErrorIs(t, err, ErrInvalidMode)

	assert.ErrorIs(t, ed.BeginCheckpoint("hospital", ""), ErrInvalidCheckpointType)
	assert.ErrorIs(t, ed.BeginCheckpoint(models.CheckpointSchool, "missing"), ErrUnknownRoute)
	assert.Equal(t, ModeIdle, ed.Mode())

	require.NoError(t, ed.BeginCheckpoint(models.CheckpointSchool, ""))
	_, err = ed.PlaceCheckpoint(context.Background(), "", p1)
	assert.ErrorIs(t, err, ErrNameRequired)
	_, err = ed.PlaceCheckpoint(context.Background(), "Prepa", models.Coordinate{Lat: 0, Lng: 200})
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.Equal(t, ModePlacingCheckpoint, ed.Mode())

	checkpoints.AssertNotCalled(t, "InsertCheckpoint", mock.Anything, mock.Anything)
}

func TestEditor_EnteringModeCancelsOther(t *testing.T) {
	ed, routes, _, _ := newTestEditor()

	ed.BeginRoute()
	require.NoError(t, ed.AddPoint(p1))
	require.NoError(t, ed.AddPoint(p2))
	require.NoError(t, ed.BeginCheckpoint(models.CheckpointGeneral, ""))
	assert.Equal(t, ModePlacingCheckpoint, ed.Mode())
	assert.Empty(t, ed.Points())

	ed.BeginRoute()
	snap := ed.Snapshot()
	assert.Equal(t, ModeDrawingRoute, snap.Mode)
	assert.Empty(t, snap.CheckpointType)
	assert.Empty(t, snap.Points)

	ed.Cancel()
	assert.Equal(t, ModeIdle, ed.Mode())
	routes.AssertNotCalled(t, "InsertRoute", mock.Anything, mock.Anything)
}

func TestEditor_DeleteRoute(t *testing.T) {
	ed, routes, _, reg := newTestEditor()
	reg.PutRoute(models.Route{ID: "route-1"})
	routes.On("DeleteRoute", mock.Anything, "route-1").Return(nil).Once()
	routes.On("DeleteRoute", mock.Anything, "ghost").Return(db.ErrNotFound).Once()

	require.NoError(t, ed.DeleteRoute(context.Background(), "route-1"))
	_, ok := reg.Route("route-1")
	assert.False(t, ok)

	assert.ErrorIs(t, ed.DeleteRoute(context.Background(), "ghost"), db.ErrNotFound)
	routes.AssertExpectations(t)
}

func TestEditor_DeleteCheckpoint(t *testing.T) {
	ed, _, checkpoints, reg := newTestEditor()
	reg.PutCheckpoint(models.Checkpoint{ID: "cp-1", Name: "Centro"})
	checkpoints.On("DeleteCheckpoint", mock.Anything, "cp-1").Return(nil).Once()

	require.NoError(t, ed.DeleteCheckpoint(context.Background(), "cp-1"))
	assert.Empty(t, reg.Checkpoints())
	checkpoints.AssertExpectations(t)
}

func TestPool_OneEditorPerOperator(t *testing.T) {
	routes := new(MockRouteStore)
	reg := geofence.NewRegistry()
	reg.PutRoute(models.Route{ID: "route-1"})
	pool := NewPool(routes, new(MockCheckpointStore), reg)

	a := pool.For("op-a")
	assert.Same(t, a, pool.For("op-a"))
	b := pool.For("op-b")
	assert.NotSame(t, a, b)

	a.BeginRoute()
	assert.Equal(t, ModeIdle, b.Mode())

	routes.On("DeleteRoute", mock.Anything, "route-1").Return(nil).Once()
	require.NoError(t, pool.DeleteRoute(context.Background(), "route-1"))
	assert.Equal(t, ModeDrawingRoute, a.Mode())
	_, ok := reg.Route("route-1")
	assert.False(t, ok)
}
