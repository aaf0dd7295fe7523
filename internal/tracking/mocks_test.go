package tracking

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
)

// MockVehicleStore is a mock implementation of db.VehicleStore
type MockVehicleStore struct {
	mock.Mock
}

func (m *MockVehicleStore) UpsertVehicle(ctx context.Context, id string, update models.VehicleUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockVehicleStore) FindVehicles(ctx context.Context) ([]models.Vehicle, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *MockVehicleStore) ClearPathHistories(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockSink is a mock implementation of events.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) CheckpointReached(ctx context.Context, e models.CheckpointReachedEvent) {
	m.Called(ctx, e)
}

func (m *MockSink) BreakdownChanged(ctx context.Context, e models.BreakdownChangedEvent) {
	m.Called(ctx, e)
}

// staticCheckpoints scopes a fixed checkpoint list the same way the registry does.
type staticCheckpoints []models.Checkpoint

func (s staticCheckpoints) CheckpointsFor(routeID string) []models.Checkpoint {
	var out []models.Checkpoint
	for _, c := range s {
		if c.RouteID == "" || (routeID != "" && c.RouteID == routeID) {
			out = append(out, c)
		}
	}
	return out
}

type routeMap map[string]models.Route

func (r routeMap) Route(id string) (models.Route, bool) {
	rt, ok := r[id]
	return rt, ok
}

type failingSource struct {
	err error
}

func (f failingSource) Acquire(context.Context, string) (location.Stream, error) {
	return nil, f.err
}

var centro = models.Checkpoint{
	ID:       "cp-centro",
	Name:     "Centro",
	Type:     models.CheckpointStop,
	Position: models.Coordinate{Lat: 26.5096, Lng: -100.1769},
}

func fixAt(vehicleID string, lat, lng float64) models.Fix {
	return models.Fix{VehicleID: vehicleID, Position: &models.Coordinate{Lat: lat, Lng: lng}}
}
