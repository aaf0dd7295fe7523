package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/ukydev/campus-transit/internal/models"
)

// Point converts a coordinate to an orb point (lng, lat order).
func Point(c models.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// LineString converts an ordered coordinate sequence to an orb line string.
func LineString(points []models.Coordinate) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, Point(p))
	}
	return ls
}

// FeatureCollection renders routes, checkpoints and vehicles as one GeoJSON
// collection for map clients. Each feature carries a "kind" property.
func FeatureCollection(routes []models.Route, checkpoints []models.Checkpoint, vehicles []models.Vehicle) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range routes {
		f := geojson.NewFeature(LineString(r.Points))
		f.ID = r.ID
		f.Properties["kind"] = "route"
		f.Properties["name"] = r.Name
		f.Properties["color"] = r.Color
		f.Properties["length_m"] = PathLength(r.Points)
		fc.Append(f)
	}
	for _, c := range checkpoints {
		f := geojson.NewFeature(Point(c.Position))
		f.ID = c.ID
		f.Properties["kind"] = "checkpoint"
		f.Properties["name"] = c.Name
		f.Properties["type"] = string(c.Type)
		if !c.IsGlobal() {
			f.Properties["route_id"] = c.RouteID
		}
		fc.Append(f)
	}
	for _, v := range vehicles {
		f := geojson.NewFeature(Point(v.Position))
		f.ID = v.ID
		f.Properties["kind"] = "vehicle"
		f.Properties["driver_name"] = v.DriverName
		f.Properties["status"] = string(v.Status)
		f.Properties["last_update"] = v.LastUpdate
		if v.LastCheckpoint != "" {
			f.Properties["last_checkpoint"] = v.LastCheckpoint
		}
		fc.Append(f)
		if len(v.PathHistory) >= 2 {
			trail := geojson.NewFeature(LineString(v.PathHistory))
			trail.Properties["kind"] = "trail"
			trail.Properties["vehicle_id"] = v.ID
			fc.Append(trail)
		}
	}
	return fc
}
