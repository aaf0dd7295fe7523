package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/auth"
	"github.com/ukydev/campus-transit/internal/models"
)

// AuthHandler handles token requests
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// TokenRequest asks for a token on behalf of a driver, operator or viewer.
// For drivers UserID is the vehicle ID.
type TokenRequest struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
}

// TokenResponse carries a signed bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken provisions a token for a device or user. Admin only.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Validate input
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !models.IsValidRole(req.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	token, err := h.authService.GenerateToken(req.UserID, req.Name, req.Role)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{
		"issued_by": caller.UserID,
		"user_id":   req.UserID,
		"role":      req.Role,
	}).Info("Token issued")

	writeJSON(w, http.StatusCreated, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.authService.Expiry()),
	})
}

// Me returns the caller's claims.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
