package tracking

import (
	"context"
	"sync"

	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
)

// RouteLookup resolves route IDs. *geofence.Registry satisfies it.
type RouteLookup interface {
	Route(id string) (models.Route, bool)
}

// Manager owns the tracking sessions of all vehicles, one per vehicle ID.
// Sessions outlive the requests that start them and run under the
// manager's base context.
type Manager struct {
	ctx    context.Context
	source location.Source
	routes RouteLookup
	deps   Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. routes may be nil to skip route validation.
func NewManager(ctx context.Context, source location.Source, routes RouteLookup, deps Deps) *Manager {
	return &Manager{
		ctx:      ctx,
		source:   source,
		routes:   routes,
		deps:     deps.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) checkRoute(routeID string) error {
	if routeID == "" || m.routes == nil {
		return nil
	}
	if _, ok := m.routes.Route(routeID); !ok {
		return ErrUnknownRoute
	}
	return nil
}

// Start opens a fresh session for cfg.VehicleID. It fails with
// ErrAlreadyTracking if that vehicle is tracking, and with ErrAcquisition if
// the location source cannot deliver fixes for it.
func (m *Manager) Start(cfg SessionConfig) (*Session, error) {
	if err := m.checkRoute(cfg.RouteID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[cfg.VehicleID]; ok && s.Status() == StatusTracking {
		return nil, ErrAlreadyTracking
	}

	s, err := NewSession(cfg, m.deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(m.ctx, m.source); err != nil {
		return nil, err
	}
	m.sessions[cfg.VehicleID] = s
	return s, nil
}

// Stop ends the vehicle's session.
func (m *Manager) Stop(vehicleID string) error {
	m.mu.Lock()
	s, ok := m.sessions[vehicleID]
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	s.Stop()
	return nil
}

// Session returns the vehicle's most recent session, tracking or not.
func (m *Manager) Session(vehicleID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[vehicleID]
	return s, ok
}

// SetRoute reassigns a tracking vehicle to a known route.
func (m *Manager) SetRoute(ctx context.Context, vehicleID, routeID string) error {
	if err := m.checkRoute(routeID); err != nil {
		return err
	}
	s, ok := m.Session(vehicleID)
	if !ok {
		return ErrNoSession
	}
	s.SetRoute(ctx, routeID)
	return nil
}

// StopAll stops every session and waits for their pending writes.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
		s.Wait()
	}
}
