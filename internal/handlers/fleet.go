package handlers

import (
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/geo"
	"github.com/ukydev/campus-transit/internal/models"
	"github.com/ukydev/campus-transit/internal/tracking"
)

// GeofenceView is the read side of the geofence registry.
type GeofenceView interface {
	Routes() []models.Route
	Route(id string) (models.Route, bool)
	Checkpoints() []models.Checkpoint
	CheckpointsFor(routeID string) []models.Checkpoint
}

// FleetHandler serves the read-only viewer endpoints.
type FleetHandler struct {
	vehicles   db.VehicleStore
	geofences  GeofenceView
	staleAfter time.Duration
	now        func() time.Time
}

// NewFleetHandler creates a fleet handler.
func NewFleetHandler(vehicles db.VehicleStore, geofences GeofenceView, staleAfter time.Duration) *FleetHandler {
	return &FleetHandler{
		vehicles:   vehicles,
		geofences:  geofences,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Routes lists every route.
func (h *FleetHandler) Routes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.geofences.Routes())
}

// Checkpoints lists checkpoints. With ?route_id= it returns what a vehicle on
// that route is checked against: the route's own checkpoints plus the global ones.
func (h *FleetHandler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("route_id") {
		writeJSON(w, http.StatusOK, h.geofences.CheckpointsFor(q.Get("route_id")))
		return
	}
	writeJSON(w, http.StatusOK, h.geofences.Checkpoints())
}

// Vehicles lists the live vehicle records.
func (h *FleetHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, ok := h.findVehicles(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// GeoJSON exports routes, checkpoints and vehicles as one FeatureCollection.
func (h *FleetHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	vehicles, ok := h.findVehicles(w, r)
	if !ok {
		return
	}
	fc := geo.FeatureCollection(h.geofences.Routes(), h.geofences.Checkpoints(), vehicles)
	body, err := fc.MarshalJSON()
	if err != nil {
		log.WithError(err).Error("Failed to encode GeoJSON")
		http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Status reports each vehicle's last checkpoint and data freshness.
// ?exclude_broken=true hides broken-down vehicles.
func (h *FleetHandler) Status(w http.ResponseWriter, r *http.Request) {
	excludeBroken := false
	if v := r.URL.Query().Get("exclude_broken"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "exclude_broken must be a boolean", http.StatusBadRequest)
			return
		}
		excludeBroken = b
	}
	vehicles, ok := h.findVehicles(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tracking.FleetStatus(vehicles, h.geofences, h.now(), tracking.StatusOptions{
		StaleAfter:    h.staleAfter,
		ExcludeBroken: excludeBroken,
	}))
}

func (h *FleetHandler) findVehicles(w http.ResponseWriter, r *http.Request) ([]models.Vehicle, bool) {
	vehicles, err := h.vehicles.FindVehicles(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to fetch vehicles")
		http.Error(w, "Failed to fetch vehicles", http.StatusInternalServerError)
		return nil, false
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	return vehicles, true
}
