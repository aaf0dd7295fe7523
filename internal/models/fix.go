package models

import "time"

// Fix is one raw GPS sample. A nil or invalid Position marks it malformed.
type Fix struct {
	VehicleID string      `json:"vehicle_id"`
	Position  *Coordinate `json:"position"`
	Timestamp time.Time   `json:"timestamp"`
}

// Malformed reports whether the fix lacks usable coordinates.
func (f Fix) Malformed() bool {
	return f.Position == nil || !f.Position.Valid()
}

// CheckpointReachedEvent is emitted when a vehicle enters a checkpoint geofence.
type CheckpointReachedEvent struct {
	ID             string    `json:"id"`
	VehicleID      string    `json:"vehicle_id"`
	CheckpointID   string    `json:"checkpoint_id"`
	CheckpointName string    `json:"checkpoint_name"`
	Timestamp      time.Time `json:"timestamp"`
}

// BreakdownChangedEvent is emitted when a driver toggles the breakdown flag.
type BreakdownChangedEvent struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicle_id"`
	Broken    bool      `json:"broken"`
	Timestamp time.Time `json:"timestamp"`
}
