// Package geo holds the distance math and map export helpers used by the tracker.
package geo

import (
	"math"

	"github.com/ukydev/campus-transit/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for every distance in the module.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between a and b in meters (Haversine).
func Distance(a, b models.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusMeters * c
}

// PathLength sums the segment distances of an ordered point sequence.
func PathLength(points []models.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
