package tracking

import (
	"math"
	"sort"
	"time"

	"github.com/ukydev/campus-transit/internal/models"
)

// InTransit is reported for vehicles that have not reached any checkpoint yet.
const InTransit = "in transit"

// StatusOptions tunes FleetStatus.
type StatusOptions struct {
	// StaleAfter marks vehicles with no update for this long. Zero disables it.
	StaleAfter    time.Duration
	ExcludeBroken bool
}

// VehicleSummary is one line of the fleet status report.
type VehicleSummary struct {
	VehicleID          string               `json:"vehicle_id"`
	DriverName         string               `json:"driver_name"`
	RouteID            string               `json:"route_id,omitempty"`
	RouteName          string               `json:"route_name,omitempty"`
	Status             models.VehicleStatus `json:"status"`
	LastCheckpoint     string               `json:"last_checkpoint"`
	MinutesSinceUpdate int                  `json:"minutes_since_update"`
	Stale              bool                 `json:"stale"`
}

// FleetStatus summarizes vehicle records for dispatchers, ordered by driver
// name. routes may be nil.
func FleetStatus(vehicles []models.Vehicle, routes RouteLookup, now time.Time, opts StatusOptions) []VehicleSummary {
	out := make([]VehicleSummary, 0, len(vehicles))
	for _, v := range vehicles {
		if opts.ExcludeBroken && v.Status == models.StatusBreakdown {
			continue
		}
		age := now.Sub(v.LastUpdate)
		if age < 0 {
			age = 0
		}
		sum := VehicleSummary{
			VehicleID:          v.ID,
			DriverName:         v.DriverName,
			RouteID:            v.RouteID,
			Status:             v.Status,
			LastCheckpoint:     v.LastCheckpoint,
			MinutesSinceUpdate: int(math.Floor(age.Minutes())),
			Stale:              opts.StaleAfter > 0 && age >= opts.StaleAfter,
		}
		if sum.LastCheckpoint == "" {
			sum.LastCheckpoint = InTransit
		}
		if routes != nil && v.RouteID != "" {
			if r, ok := routes.Route(v.RouteID); ok {
				sum.RouteName = r.Name
			}
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DriverName != out[j].DriverName {
			return out[i].DriverName < out[j].DriverName
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}
