package models

import "time"

// CheckpointType classifies an operator-defined point of interest.
type CheckpointType string

const (
	CheckpointStop    CheckpointType = "stop"
	CheckpointSchool  CheckpointType = "school"
	CheckpointGeneral CheckpointType = "general"
)

// IsValidCheckpointType checks if a checkpoint type is known.
func IsValidCheckpointType(t CheckpointType) bool {
	switch t {
	case CheckpointStop, CheckpointSchool, CheckpointGeneral:
		return true
	default:
		return false
	}
}

// Checkpoint is a geofenced point of interest. An empty RouteID makes it global.
type Checkpoint struct {
	ID        string         `bson:"_id" json:"id"`
	Name      string         `bson:"name" json:"name"`
	Type      CheckpointType `bson:"type" json:"type"`
	Position  Coordinate     `bson:"position" json:"position"`
	RouteID   string         `bson:"route_id,omitempty" json:"route_id,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// IsGlobal reports whether the checkpoint applies to every route.
func (c Checkpoint) IsGlobal() bool {
	return c.RouteID == ""
}
