// Package location supplies raw GPS fixes to tracking sessions.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/campus-transit/internal/models"
)

var (
	ErrSourceUnavailable = errors.New("location source unavailable")
	ErrAlreadyAcquired   = errors.New("location stream already acquired for vehicle")
	ErrNotTracking       = errors.New("vehicle is not tracking")
)

// Stream delivers fixes for one vehicle, one at a time, until Done is closed.
type Stream interface {
	Fixes() <-chan models.Fix
	Done() <-chan struct{}
	Close()
}

// Source hands out per-vehicle fix streams. Acquire fails when the source
// cannot deliver fixes (no broker, no permission, already in use).
type Source interface {
	Acquire(ctx context.Context, vehicleID string) (Stream, error)
}

// FixMessage is the wire shape of a fix posted by a driver device.
type FixMessage struct {
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Fix converts the message. Missing coordinates yield a malformed fix.
func (m FixMessage) Fix(vehicleID string) models.Fix {
	f := models.Fix{VehicleID: vehicleID}
	if m.Lat != nil && m.Lng != nil {
		f.Position = &models.Coordinate{Lat: *m.Lat, Lng: *m.Lng}
	}
	if m.Timestamp != nil {
		f.Timestamp = *m.Timestamp
	}
	return f
}
