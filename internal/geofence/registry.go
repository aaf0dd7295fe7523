// Package geofence keeps the in-memory view of routes and checkpoints that
// every tracking session consults on each fix.
package geofence

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/models"
)

// Loader reads the full route and checkpoint sets from the backing store.
type Loader interface {
	FindRoutes(ctx context.Context) ([]models.Route, error)
	FindCheckpoints(ctx context.Context) ([]models.Checkpoint, error)
}

// Watcher streams full snapshots of the route and checkpoint collections.
type Watcher interface {
	WatchRoutes(ctx context.Context) <-chan []models.Route
	WatchCheckpoints(ctx context.Context) <-chan []models.Checkpoint
}

// Registry is a read-mostly set of routes and checkpoints. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	routes      map[string]models.Route
	checkpoints map[string]models.Checkpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		routes:      make(map[string]models.Route),
		checkpoints: make(map[string]models.Checkpoint),
	}
}

// CheckpointsFor returns the checkpoints bound to routeID plus every global
// checkpoint. An empty routeID yields only the global ones.
func (r *Registry) CheckpointsFor(routeID string) []models.Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Checkpoint, 0, len(r.checkpoints))
	for _, c := range r.checkpoints {
		if c.IsGlobal() || (routeID != "" && c.RouteID == routeID) {
			out = append(out, c)
		}
	}
	sortCheckpoints(out)
	return out
}

// Checkpoints returns every checkpoint.
func (r *Registry) Checkpoints() []models.Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Checkpoint, 0, len(r.checkpoints))
	for _, c := range r.checkpoints {
		out = append(out, c)
	}
	sortCheckpoints(out)
	return out
}

// Routes returns every route, ordered by creation time.
func (r *Registry) Routes() []models.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Route looks up one route by ID.
func (r *Registry) Route(id string) (models.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[id]
	return rt, ok
}

// PutRoute adds or replaces a route after an editor save.
func (r *Registry) PutRoute(rt models.Route) {
	r.mu.Lock()
	r.routes[rt.ID] = rt
	r.mu.Unlock()
}

// RemoveRoute forgets a deleted route. Its checkpoints stay until removed.
func (r *Registry) RemoveRoute(id string) {
	r.mu.Lock()
	delete(r.routes, id)
	r.mu.Unlock()
}

// PutCheckpoint adds or replaces a checkpoint. Sessions on its route see it
// from their next fix.
func (r *Registry) PutCheckpoint(c models.Checkpoint) {
	r.mu.Lock()
	r.checkpoints[c.ID] = c
	r.mu.Unlock()
}

// RemoveCheckpoint forgets a deleted checkpoint.
func (r *Registry) RemoveCheckpoint(id string) {
	r.mu.Lock()
	delete(r.checkpoints, id)
	r.mu.Unlock()
}

// ReplaceRoutes swaps the whole route set for a fresh snapshot.
func (r *Registry) ReplaceRoutes(routes []models.Route) {
	next := make(map[string]models.Route, len(routes))
	for _, rt := range routes {
		next[rt.ID] = rt
	}
	r.mu.Lock()
	r.routes = next
	r.mu.Unlock()
}

// ReplaceCheckpoints swaps the whole checkpoint set for a fresh snapshot.
func (r *Registry) ReplaceCheckpoints(checkpoints []models.Checkpoint) {
	next := make(map[string]models.Checkpoint, len(checkpoints))
	for _, c := range checkpoints {
		next[c.ID] = c
	}
	r.mu.Lock()
	r.checkpoints = next
	r.mu.Unlock()
}

// Load fills the registry from the store once.
func (r *Registry) Load(ctx context.Context, store Loader) error {
	routes, err := store.FindRoutes(ctx)
	if err != nil {
		return err
	}
	checkpoints, err := store.FindCheckpoints(ctx)
	if err != nil {
		return err
	}
	r.ReplaceRoutes(routes)
	r.ReplaceCheckpoints(checkpoints)
	log.WithFields(log.Fields{
		"routes":      len(routes),
		"checkpoints": len(checkpoints),
	}).Info("Geofence registry loaded")
	return nil
}

// Sync applies snapshot streams from w until ctx is done.
func (r *Registry) Sync(ctx context.Context, w Watcher) {
	routes := w.WatchRoutes(ctx)
	checkpoints := w.WatchCheckpoints(ctx)
	for routes != nil || checkpoints != nil {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-routes:
			if !ok {
				routes = nil
				continue
			}
			r.ReplaceRoutes(snap)
		case snap, ok := <-checkpoints:
			if !ok {
				checkpoints = nil
				continue
			}
			r.ReplaceCheckpoints(snap)
		}
	}
}

func sortCheckpoints(cs []models.Checkpoint) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}
