package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/editor"
	"github.com/ukydev/campus-transit/internal/models"
)

// EditorHandler serves the operator's route and checkpoint editor. Each
// operator gets their own editor state.
type EditorHandler struct {
	pool *editor.Pool
}

// NewEditorHandler creates an editor handler.
func NewEditorHandler(pool *editor.Pool) *EditorHandler {
	return &EditorHandler{pool: pool}
}

func (h *EditorHandler) editor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	claims, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	return h.pool.For(claims.UserID), true
}

func writeEditorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, editor.ErrInvalidMode):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, editor.ErrTooFewPoints),
		errors.Is(err, editor.ErrNameRequired),
		errors.Is(err, editor.ErrInvalidCheckpointType),
		errors.Is(err, editor.ErrUnknownRoute),
		errors.Is(err, editor.ErrInvalidPosition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		log.WithError(err).Error("Editor operation failed")
		http.Error(w, "Failed to save", http.StatusInternalServerError)
	}
}

// State returns the caller's editor state.
func (h *EditorHandler) State(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ed.Snapshot())
}

// BeginRoute starts drawing a route.
func (h *EditorHandler) BeginRoute(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	ed.BeginRoute()
	writeJSON(w, http.StatusOK, ed.Snapshot())
}

// AddPoints appends clicked points, in order, to the route being drawn.
func (h *EditorHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req struct {
		Points []models.Coordinate `json:"points"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Points) == 0 {
		http.Error(w, "points are required", http.StatusBadRequest)
		return
	}
	for _, p := range req.Points {
		if !p.Valid() {
			writeEditorError(w, editor.ErrInvalidPosition)
			return
		}
	}
	for _, p := range req.Points {
		if err := ed.AddPoint(p); err != nil {
			writeEditorError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ed.Snapshot())
}

// CommitRoute saves the drawn route.
func (h *EditorHandler) CommitRoute(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	route, err := ed.CommitRoute(r.Context(), req.Name, req.Color)
	if err != nil {
		writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

// Cancel discards whatever the caller was drawing or placing.
func (h *EditorHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	ed.Cancel()
	writeJSON(w, http.StatusOK, ed.Snapshot())
}

// BeginCheckpoint arms checkpoint placement.
func (h *EditorHandler) BeginCheckpoint(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req struct {
		Type    models.CheckpointType `json:"type"`
		RouteID string                `json:"route_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ed.BeginCheckpoint(req.Type, req.RouteID); err != nil {
		writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ed.Snapshot())
}

// PlaceCheckpoint saves a checkpoint at the clicked position.
func (h *EditorHandler) PlaceCheckpoint(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req struct {
		Name     string            `json:"name"`
		Position models.Coordinate `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	cp, err := ed.PlaceCheckpoint(r.Context(), req.Name, req.Position)
	if err != nil {
		writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

// DeleteRoute deletes a route by ID.
func (h *EditorHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.DeleteRoute(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeEditorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCheckpoint deletes a checkpoint by ID.
func (h *EditorHandler) DeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.DeleteCheckpoint(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeEditorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
