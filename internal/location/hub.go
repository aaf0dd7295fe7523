package location

import (
	"context"
	"sync"

	"github.com/ukydev/campus-transit/internal/models"
)

// Hub is a push-based source: callers Push fixes (e.g. from an HTTP handler)
// and the hub hands them to the stream acquired for that vehicle.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*hubStream
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*hubStream)}
}

type hubStream struct {
	hub       *Hub
	vehicleID string
	fixes     chan models.Fix
	done      chan struct{}
	once      sync.Once
}

func (s *hubStream) Fixes() <-chan models.Fix { return s.fixes }
func (s *hubStream) Done() <-chan struct{}    { return s.done }

func (s *hubStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		if s.hub.streams[s.vehicleID] == s {
			delete(s.hub.streams, s.vehicleID)
		}
		s.hub.mu.Unlock()
	})
}

// Acquire opens the stream for vehicleID. Only one stream per vehicle may be open.
func (h *Hub) Acquire(_ context.Context, vehicleID string) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[vehicleID]; ok {
		return nil, ErrAlreadyAcquired
	}
	s := &hubStream{
		hub:       h,
		vehicleID: vehicleID,
		fixes:     make(chan models.Fix),
		done:      make(chan struct{}),
	}
	h.streams[vehicleID] = s
	return s, nil
}

// Push hands fix to the vehicle's stream, blocking until the session takes it.
func (h *Hub) Push(ctx context.Context, fix models.Fix) error {
	h.mu.Lock()
	s, ok := h.streams[fix.VehicleID]
	h.mu.Unlock()
	if !ok {
		return ErrNotTracking
	}
	select {
	case s.fixes <- fix:
		return nil
	case <-s.done:
		return ErrNotTracking
	case <-ctx.Done():
		return ctx.Err()
	}
}

