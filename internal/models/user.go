package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleDriver   Role = "driver"
	RoleViewer   Role = "viewer"
)

// Permission names checked by the HTTP layer.
const (
	PermTrack         = "track"
	PermEditGeofences = "edit_geofences"
	PermViewFleet     = "view_fleet"
)

// Claims represents JWT claims. For drivers UserID doubles as the vehicle ID.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleDriver, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a specific action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleOperator:
		return action == PermEditGeofences || action == PermViewFleet
	case RoleDriver:
		return action == PermTrack || action == PermViewFleet
	case RoleViewer:
		return action == PermViewFleet
	default:
		return false
	}
}
