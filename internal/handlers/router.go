package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ukydev/campus-transit/internal/middleware"
	"github.com/ukydev/campus-transit/internal/models"
)

// Health reports liveness. check may be nil; when set, a failing check
// turns the response into 503.
func Health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Router bundles everything NewRouter mounts.
type Router struct {
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimitMiddleware
	// FixesPerMinute caps POST /api/tracking/fix per vehicle. Zero disables the cap.
	FixesPerMinute int

	Tokens   *AuthHandler
	Tracking *TrackingHandler
	Fleet    *FleetHandler
	Editor   *EditorHandler
	Stream   *VehicleStream
	Health   http.HandlerFunc
}

// NewRouter builds the HTTP API.
func NewRouter(rt Router) *mux.Router {
	if rt.Health == nil {
		rt.Health = Health(nil)
	}
	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Handle("/health", rt.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(rt.Auth.Authenticate)

	perm := func(p string, h http.HandlerFunc) http.Handler {
		return rt.Auth.RequirePermission(p)(h)
	}

	api.Handle("/auth/token", rt.Auth.RequireRole(models.RoleAdmin)(http.HandlerFunc(rt.Tokens.IssueToken))).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", rt.Tokens.Me).Methods(http.MethodGet)

	// Driver
	fix := perm(models.PermTrack, rt.Tracking.Fix)
	if rt.RateLimiter != nil && rt.FixesPerMinute > 0 {
		fix = rt.RateLimiter.RateLimit(rt.FixesPerMinute, 60)(fix)
	}
	api.Handle("/tracking", perm(models.PermTrack, rt.Tracking.State)).Methods(http.MethodGet)
	api.Handle("/tracking/start", perm(models.PermTrack, rt.Tracking.Start)).Methods(http.MethodPost)
	api.Handle("/tracking/stop", perm(models.PermTrack, rt.Tracking.Stop)).Methods(http.MethodPost)
	api.Handle("/tracking/fix", fix).Methods(http.MethodPost)
	api.Handle("/tracking/breakdown", perm(models.PermTrack, rt.Tracking.Breakdown)).Methods(http.MethodPut)
	api.Handle("/tracking/mode", perm(models.PermTrack, rt.Tracking.Mode)).Methods(http.MethodPut)
	api.Handle("/tracking/route", perm(models.PermTrack, rt.Tracking.Route)).Methods(http.MethodPut)

	// Operator
	api.Handle("/editor", perm(models.PermEditGeofences, rt.Editor.State)).Methods(http.MethodGet)
	api.Handle("/editor/route/begin", perm(models.PermEditGeofences, rt.Editor.BeginRoute)).Methods(http.MethodPost)
	api.Handle("/editor/route/points", perm(models.PermEditGeofences, rt.Editor.AddPoints)).Methods(http.MethodPost)
	api.Handle("/editor/route/commit", perm(models.PermEditGeofences, rt.Editor.CommitRoute)).Methods(http.MethodPost)
	api.Handle("/editor/cancel", perm(models.PermEditGeofences, rt.Editor.Cancel)).Methods(http.MethodPost)
	api.Handle("/editor/checkpoint/begin", perm(models.PermEditGeofences, rt.Editor.BeginCheckpoint)).Methods(http.MethodPost)
	api.Handle("/editor/checkpoint/place", perm(models.PermEditGeofences, rt.Editor.PlaceCheckpoint)).Methods(http.MethodPost)
	api.Handle("/routes/{id}", perm(models.PermEditGeofences, rt.Editor.DeleteRoute)).Methods(http.MethodDelete)
	api.Handle("/checkpoints/{id}", perm(models.PermEditGeofences, rt.Editor.DeleteCheckpoint)).Methods(http.MethodDelete)

	// Viewer
	api.Handle("/routes", perm(models.PermViewFleet, rt.Fleet.Routes)).Methods(http.MethodGet)
	api.Handle("/checkpoints", perm(models.PermViewFleet, rt.Fleet.Checkpoints)).Methods(http.MethodGet)
	api.Handle("/geofences.geojson", perm(models.PermViewFleet, rt.Fleet.GeoJSON)).Methods(http.MethodGet)
	api.Handle("/vehicles", perm(models.PermViewFleet, rt.Fleet.Vehicles)).Methods(http.MethodGet)
	api.Handle("/vehicles/ws", rt.Auth.RequirePermission(models.PermViewFleet)(rt.Stream)).Methods(http.MethodGet)
	api.Handle("/fleet/status", perm(models.PermViewFleet, rt.Fleet.Status)).Methods(http.MethodGet)

	return r
}
