// Package editor implements the operator workflow for drawing routes and
// placing checkpoints.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/models"
)

var (
	ErrTooFewPoints          = models.ErrRouteTooFewPoints
	ErrNameRequired          = errors.New("name is required")
	ErrInvalidMode           = errors.New("operation not allowed in current editor mode")
	ErrInvalidCheckpointType = errors.New("invalid checkpoint type")
	ErrUnknownRoute          = errors.New("unknown route")
	ErrInvalidPosition       = errors.New("invalid coordinate")
)

// Mode is the editor's current state.
type Mode string

const (
	ModeIdle              Mode = "idle"
	ModeDrawingRoute      Mode = "drawing_route"
	ModePlacingCheckpoint Mode = "placing_checkpoint"
)

// Registry is the slice of the geofence registry the editor keeps current.
type Registry interface {
	Route(id string) (models.Route, bool)
	PutRoute(models.Route)
	RemoveRoute(id string)
	PutCheckpoint(models.Checkpoint)
	RemoveCheckpoint(id string)
}

// Snapshot is a read-only copy of the editor state.
type Snapshot struct {
	Mode           Mode                  `json:"mode"`
	Points         []models.Coordinate   `json:"points,omitempty"`
	CheckpointType models.CheckpointType `json:"checkpoint_type,omitempty"`
	RouteID        string                `json:"route_id,omitempty"`
}

// Editor is one operator's editing session. Only one mode is active at a
// time; entering a mode discards whatever the other mode had pending.
type Editor struct {
	routes      db.RouteStore
	checkpoints db.CheckpointStore
	registry    Registry

	mu      sync.Mutex
	mode    Mode
	points  []models.Coordinate
	cpType  models.CheckpointType
	cpRoute string
}

// New creates an idle editor.
func New(routes db.RouteStore, checkpoints db.CheckpointStore, registry Registry) *Editor {
	return &Editor{
		routes:      routes,
		checkpoints: checkpoints,
		registry:    registry,
		mode:        ModeIdle,
	}
}

func (e *Editor) reset() {
	e.mode = ModeIdle
	e.points = nil
	e.cpType = ""
	e.cpRoute = ""
}

// Mode returns the current mode.
func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Points returns the route points accumulated so far, in click order.
func (e *Editor) Points() []models.Coordinate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Coordinate(nil), e.points...)
}

// Snapshot returns the full editor state.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Mode:           e.mode,
		Points:         append([]models.Coordinate(nil), e.points...),
		CheckpointType: e.cpType,
		RouteID:        e.cpRoute,
	}
}

// BeginRoute starts drawing a new route with an empty accumulator.
func (e *Editor) BeginRoute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	e.mode = ModeDrawingRoute
	e.points = []models.Coordinate{}
}

// AddPoint appends one map click to the route being drawn.
func (e *Editor) AddPoint(p models.Coordinate) error {
	if !p.Valid() {
		return ErrInvalidPosition
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeDrawingRoute {
		return ErrInvalidMode
	}
	e.points = append(e.points, p)
	return nil
}

// CommitRoute persists the drawn route and returns to idle. On any failure
// nothing is persisted and the drawing is kept.
func (e *Editor) CommitRoute(ctx context.Context, name, color string) (models.Route, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeDrawingRoute {
		return models.Route{}, ErrInvalidMode
	}
	if len(e.points) < 2 {
		return models.Route{}, ErrTooFewPoints
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Route{}, ErrNameRequired
	}
	if color == "" {
		color = models.DefaultRouteColor
	}

	route, err := e.routes.InsertRoute(ctx, models.Route{
		Name:   name,
		Color:  color,
		Points: append([]models.Coordinate(nil), e.points...),
	})
	if err != nil {
		return models.Route{}, fmt.Errorf("save route: %w", err)
	}
	e.registry.PutRoute(route)
	e.reset()

	log.WithFields(log.Fields{
		"route_id": route.ID,
		"name":     route.Name,
		"points":   len(route.Points),
	}).Info("Route saved")
	return route, nil
}

// CancelRoute discards the drawing in progress.
func (e *Editor) CancelRoute() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeDrawingRoute {
		return ErrInvalidMode
	}
	e.reset()
	return nil
}

// Cancel returns to idle from any mode without persisting anything.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// BeginCheckpoint arms placement of one checkpoint of type t, optionally
// bound to routeID.
func (e *Editor) BeginCheckpoint(t models.CheckpointType, routeID string) error {
	if !models.IsValidCheckpointType(t) {
		return ErrInvalidCheckpointType
	}
	if routeID != "" {
		if _, ok := e.registry.Route(routeID); !ok {
			return ErrUnknownRoute
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	e.mode = ModePlacingCheckpoint
	e.cpType = t
	e.cpRoute = routeID
	return nil
}

// PlaceCheckpoint persists a checkpoint at pos with the armed type and
// route binding, then returns to idle.
func (e *Editor) PlaceCheckpoint(ctx context.Context, name string, pos models.Coordinate) (models.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModePlacingCheckpoint {
		return models.Checkpoint{}, ErrInvalidMode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Checkpoint{}, ErrNameRequired
	}
	if !pos.Valid() {
		return models.Checkpoint{}, ErrInvalidPosition
	}

	cp, err := e.checkpoints.InsertCheckpoint(ctx, models.Checkpoint{
		Name:     name,
		Type:     e.cpType,
		Position: pos,
		RouteID:  e.cpRoute,
	})
	if err != nil {
		return models.Checkpoint{}, fmt.Errorf("save checkpoint: %w", err)
	}
	e.registry.PutCheckpoint(cp)
	e.reset()

	log.WithFields(log.Fields{
		"checkpoint_id": cp.ID,
		"name":          cp.Name,
		"type":          cp.Type,
		"route_id":      cp.RouteID,
	}).Info("Checkpoint saved")
	return cp, nil
}

// DeleteRoute removes a route from the store and the registry.
func (e *Editor) DeleteRoute(ctx context.Context, id string) error {
	if err := e.routes.DeleteRoute(ctx, id); err != nil {
		return err
	}
	e.registry.RemoveRoute(id)
	log.WithField("route_id", id).Info("Route deleted")
	return nil
}

// DeleteCheckpoint removes a checkpoint from the store and the registry.
func (e *Editor) DeleteCheckpoint(ctx context.Context, id string) error {
	if err := e.checkpoints.DeleteCheckpoint(ctx, id); err != nil {
		return err
	}
	e.registry.RemoveCheckpoint(id)
	log.WithField("checkpoint_id", id).Info("Checkpoint deleted")
	return nil
}

// Pool hands out one editor per operator.
type Pool struct {
	routes      db.RouteStore
	checkpoints db.CheckpointStore
	registry    Registry

	mu      sync.Mutex
	editors map[string]*Editor
}

// NewPool creates an empty pool.
func NewPool(routes db.RouteStore, checkpoints db.CheckpointStore, registry Registry) *Pool {
	return &Pool{
		routes:      routes,
		checkpoints: checkpoints,
		registry:    registry,
		editors:     make(map[string]*Editor),
	}
}

// For returns the editor of operatorID, creating it on first use.
func (p *Pool) For(operatorID string) *Editor {
	p.mu.Lock()
	defer p.mu.Unlock()
	ed, ok := p.editors[operatorID]
	if !ok {
		ed = New(p.routes, p.checkpoints, p.registry)
		p.editors[operatorID] = ed
	}
	return ed
}

// DeleteRoute removes a route without touching any operator's editing state.
func (p *Pool) DeleteRoute(ctx context.Context, id string) error {
	return New(p.routes, p.checkpoints, p.registry).DeleteRoute(ctx, id)
}

// DeleteCheckpoint removes a checkpoint without touching any operator's editing state.
func (p *Pool) DeleteCheckpoint(ctx context.Context, id string) error {
	return New(p.routes, p.checkpoints, p.registry).DeleteCheckpoint(ctx, id)
}
