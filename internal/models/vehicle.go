package models

import "time"

// VehicleStatus is the driver-reported operating state of a vehicle.
type VehicleStatus string

const (
	StatusOK        VehicleStatus = "ok"
	StatusBreakdown VehicleStatus = "breakdown"
)

// StatusFor maps the breakdown flag to a status.
func StatusFor(breakdown bool) VehicleStatus {
	if breakdown {
		return StatusBreakdown
	}
	return StatusOK
}

// Vehicle is the live state document of one vehicle.
type Vehicle struct {
	ID               string        `bson:"_id" json:"id"`
	DriverName       string        `bson:"driver_name" json:"driver_name"`
	Position         Coordinate    `bson:"position" json:"position"`
	RouteID          string        `bson:"route_id,omitempty" json:"route_id,omitempty"`
	Status           VehicleStatus `bson:"status" json:"status"`
	LastUpdate       time.Time     `bson:"last_update" json:"last_update"`
	LastCheckpoint   string        `bson:"last_checkpoint,omitempty" json:"last_checkpoint,omitempty"`
	LastCheckpointAt *time.Time    `bson:"last_checkpoint_at,omitempty" json:"last_checkpoint_at,omitempty"`
	PathHistory      []Coordinate  `bson:"path_history" json:"path_history"`
}

// PathOp says what a vehicle write does to the path history.
type PathOp int

const (
	PathKeep PathOp = iota
	PathAppend
	PathClear
)

// VehicleUpdate is a partial vehicle record. Nil fields are left untouched.
type VehicleUpdate struct {
	DriverName       *string
	Position         *Coordinate
	RouteID          *string
	Status           *VehicleStatus
	LastUpdate       *time.Time
	LastCheckpoint   *string
	LastCheckpointAt *time.Time
	Path             PathOp
}
