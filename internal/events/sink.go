// Package events delivers checkpoint and breakdown notifications to whatever
// consumes them downstream. Delivery is fire-and-forget.
package events

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/models"
)

// Sink accepts tracking events. Implementations must not block the caller on delivery.
type Sink interface {
	CheckpointReached(ctx context.Context, e models.CheckpointReachedEvent)
	BreakdownChanged(ctx context.Context, e models.BreakdownChangedEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) CheckpointReached(context.Context, models.CheckpointReachedEvent) {}
func (Nop) BreakdownChanged(context.Context, models.BreakdownChangedEvent)   {}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) CheckpointReached(ctx context.Context, e models.CheckpointReachedEvent) {
	for _, s := range m {
		s.CheckpointReached(ctx, e)
	}
}

func (m Multi) BreakdownChanged(ctx context.Context, e models.BreakdownChangedEvent) {
	for _, s := range m {
		s.BreakdownChanged(ctx, e)
	}
}

// LogSink writes events to a logrus entry.
type LogSink struct {
	Log *log.Entry
}

func (s LogSink) entry() *log.Entry {
	if s.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return s.Log
}

func (s LogSink) CheckpointReached(_ context.Context, e models.CheckpointReachedEvent) {
	s.entry().WithFields(log.Fields{
		"event_id":      e.ID,
		"vehicle_id":    e.VehicleID,
		"checkpoint_id": e.CheckpointID,
		"checkpoint":    e.CheckpointName,
		"at":            e.Timestamp,
	}).Info("Checkpoint reached")
}

func (s LogSink) BreakdownChanged(_ context.Context, e models.BreakdownChangedEvent) {
	s.entry().WithFields(log.Fields{
		"event_id":   e.ID,
		"vehicle_id": e.VehicleID,
		"broken":     e.Broken,
		"at":         e.Timestamp,
	}).Warn("Breakdown status changed")
}
