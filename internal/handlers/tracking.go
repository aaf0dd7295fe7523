package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
	"github.com/ukydev/campus-transit/internal/tracking"
)

// FixPusher accepts fixes posted over HTTP. *location.Hub satisfies it.
type FixPusher interface {
	Push(ctx context.Context, fix models.Fix) error
}

// TrackingHandler serves the driver endpoints. The caller's user ID is the
// vehicle ID.
type TrackingHandler struct {
	manager *tracking.Manager
	pusher  FixPusher
}

// NewTrackingHandler creates a tracking handler. pusher is nil when fixes
// arrive over MQTT instead of HTTP.
func NewTrackingHandler(manager *tracking.Manager, pusher FixPusher) *TrackingHandler {
	return &TrackingHandler{manager: manager, pusher: pusher}
}

// SessionResponse describes a driver's tracking session.
type SessionResponse struct {
	VehicleID        string                 `json:"vehicle_id"`
	DriverName       string                 `json:"driver_name"`
	RouteID          string                 `json:"route_id,omitempty"`
	Mode             tracking.Mode          `json:"mode"`
	Breakdown        bool                   `json:"breakdown"`
	Status           tracking.SessionStatus `json:"status"`
	LastAccepted     *time.Time             `json:"last_accepted,omitempty"`
	LastCheckpointID string                 `json:"last_checkpoint_id,omitempty"`
}

func sessionResponse(s *tracking.Session) SessionResponse {
	st := s.State()
	resp := SessionResponse{
		VehicleID:        st.VehicleID,
		DriverName:       st.DriverName,
		RouteID:          st.RouteID,
		Mode:             st.Mode,
		Breakdown:        st.Breakdown,
		Status:           s.Status(),
		LastCheckpointID: st.LastCheckpointID,
	}
	if !st.LastAccepted.IsZero() {
		at := st.LastAccepted
		resp.LastAccepted = &at
	}
	return resp
}

// StartRequest is the body of POST /api/tracking/start.
type StartRequest struct {
	DriverName string `json:"driver_name"`
	RouteID    string `json:"route_id"`
	Mode       string `json:"mode"`
	Breakdown  bool   `json:"breakdown"`
}

// Start enables tracking for the caller's vehicle.
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req StartRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	mode, err := tracking.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DriverName == "" {
		req.DriverName = claims.Name
	}

	s, err := h.manager.Start(tracking.SessionConfig{
		VehicleID:  claims.UserID,
		DriverName: req.DriverName,
		RouteID:    req.RouteID,
		Mode:       mode,
		Breakdown:  req.Breakdown,
	})
	switch {
	case err == nil:
	case errors.Is(err, tracking.ErrAlreadyTracking):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, tracking.ErrUnknownRoute):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, tracking.ErrAcquisition):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		log.WithError(err).WithField("vehicle_id", claims.UserID).Error("Failed to start tracking")
		http.Error(w, "Failed to start tracking", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(s))
}

// Stop disables tracking for the caller's vehicle.
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.manager.Stop(claims.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s, _ := h.manager.Session(claims.UserID)
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// Fix accepts one GPS fix. Fixes without coordinates are accepted and dropped.
func (h *TrackingHandler) Fix(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.pusher == nil {
		http.Error(w, "Fixes are delivered over MQTT", http.StatusConflict)
		return
	}
	var msg location.FixMessage
	if err := decodeJSON(r, &msg); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	err := h.pusher.Push(r.Context(), msg.Fix(claims.UserID))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, location.ErrNotTracking):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Fix not delivered", http.StatusServiceUnavailable)
	}
}

func (h *TrackingHandler) session(w http.ResponseWriter, r *http.Request) (*tracking.Session, bool) {
	claims, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	s, ok := h.manager.Session(claims.UserID)
	if !ok {
		http.Error(w, tracking.ErrNoSession.Error(), http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// Breakdown sets or clears the breakdown flag.
func (h *TrackingHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Broken *bool `json:"broken"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Broken == nil {
		http.Error(w, "broken is required", http.StatusBadRequest)
		return
	}
	s.SetBreakdown(r.Context(), *req.Broken)
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// Mode switches the sampling mode.
func (h *TrackingHandler) Mode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	mode, err := tracking.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.SetMode(mode)
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// Route reassigns the vehicle's route. An empty route_id clears it.
func (h *TrackingHandler) Route(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		RouteID string `json:"route_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	err := h.manager.SetRoute(r.Context(), claims.UserID, req.RouteID)
	switch {
	case err == nil:
	case errors.Is(err, tracking.ErrUnknownRoute):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s, _ := h.manager.Session(claims.UserID)
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// State returns the caller's session.
func (h *TrackingHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(s))
}
