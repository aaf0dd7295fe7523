package db

import (
	"context"
	"errors"

	"github.com/ukydev/campus-transit/internal/models"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrNilCollection  = errors.New("mongo collection is nil")
	ErrEmptyUpdate    = errors.New("vehicle update has no fields")
	ErrMissingVehicle = errors.New("vehicle id is required")
)

// VehicleStore defines the interface for live vehicle state operations.
// Vehicle records are merged in place and never deleted.
type VehicleStore interface {
	UpsertVehicle(ctx context.Context, id string, update models.VehicleUpdate) error
	FindVehicles(ctx context.Context) ([]models.Vehicle, error)
	ClearPathHistories(ctx context.Context) (int64, error)
}

// RouteStore defines the interface for route operations.
type RouteStore interface {
	InsertRoute(ctx context.Context, route models.Route) (models.Route, error)
	DeleteRoute(ctx context.Context, id string) error
	FindRoutes(ctx context.Context) ([]models.Route, error)
}

// CheckpointStore defines the interface for checkpoint operations.
type CheckpointStore interface {
	InsertCheckpoint(ctx context.Context, checkpoint models.Checkpoint) (models.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, id string) error
	FindCheckpoints(ctx context.Context) ([]models.Checkpoint, error)
}

// Watcher streams full-collection snapshots. Channels close only when ctx is done.
type Watcher interface {
	WatchVehicles(ctx context.Context) <-chan []models.Vehicle
	WatchRoutes(ctx context.Context) <-chan []models.Route
	WatchCheckpoints(ctx context.Context) <-chan []models.Checkpoint
}
