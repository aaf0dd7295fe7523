package models

import (
	"errors"
	"strings"
	"time"
)

// DefaultRouteColor is the display color given to routes saved without one.
const DefaultRouteColor = "#10b981"

var (
	ErrRouteTooFewPoints = errors.New("route needs at least 2 points")
	ErrRouteNameRequired = errors.New("route name is required")
)

// Route is an ordered polyline drawn by an operator.
type Route struct {
	ID        string       `bson:"_id" json:"id"`
	Name      string       `bson:"name" json:"name"`
	Color     string       `bson:"color" json:"color"` // display hint only
	Points    []Coordinate `bson:"points" json:"points"`
	CreatedAt time.Time    `bson:"created_at" json:"created_at"`
}

// Validate checks what a route must satisfy before it is saved.
func (r Route) Validate() error {
	if len(r.Points) < 2 {
		return ErrRouteTooFewPoints
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrRouteNameRequired
	}
	return nil
}
