package db

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

const defaultPollInterval = 5 * time.Second

// changeStream is the part of *mongo.ChangeStream the watcher uses.
type changeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// WatchVehicles streams full snapshots of the vehicles collection.
func (s *MongoStore) WatchVehicles(ctx context.Context) <-chan []models.Vehicle {
	return streamSnapshots(ctx, VehiclesCollection, s.pollInterval(), s.FindVehicles, s.opener(s.Vehicles))
}

// WatchRoutes streams full snapshots of the routes collection.
func (s *MongoStore) WatchRoutes(ctx context.Context) <-chan []models.Route {
	return streamSnapshots(ctx, RoutesCollection, s.pollInterval(), s.FindRoutes, s.opener(s.Routes))
}

// WatchCheckpoints streams full snapshots of the checkpoints collection.
func (s *MongoStore) WatchCheckpoints(ctx context.Context) <-chan []models.Checkpoint {
	return streamSnapshots(ctx, CheckpointsCollection, s.pollInterval(), s.FindCheckpoints, s.opener(s.Checkpoints))
}

func (s *MongoStore) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return defaultPollInterval
	}
	return s.PollInterval
}

func (s *MongoStore) opener(coll *mongo.Collection) func(context.Context) (changeStream, error) {
	return func(ctx context.Context) (changeStream, error) {
		if coll == nil {
			return nil, ErrNilCollection
		}
		cs, err := coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			return nil, err
		}
		return cs, nil
	}
}

// streamSnapshots emits a fresh snapshot on start and after every change
// event. Without change streams (standalone servers) it polls instead. Stream
// errors restart the watch; the channel closes only when ctx is done.
func streamSnapshots[T any](
	ctx context.Context,
	name string,
	poll time.Duration,
	load func(context.Context) ([]T, error),
	open func(context.Context) (changeStream, error),
) <-chan []T {
	out := make(chan []T)
	logger := log.WithField("collection", name)

	emit := func() bool {
		snap, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("Failed to load snapshot")
			}
			return ctx.Err() == nil
		}
		select {
		case out <- snap:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if !emit() {
				return
			}
			cs, err := open(ctx)
			if err != nil {
				logger.WithError(err).Info("Change stream unavailable, polling")
				pollSnapshots(ctx, poll, emit)
				return
			}
			for cs.Next(ctx) {
				if !emit() {
					break
				}
			}
			if err := cs.Err(); err != nil && ctx.Err() == nil {
				logger.WithError(err).Warn("Change stream ended, restarting")
			}
			_ = cs.Close(context.Background())
			if !sleep(ctx, poll) {
				return
			}
		}
	}()
	return out
}

func pollSnapshots(ctx context.Context, poll time.Duration, emit func() bool) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
