package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for every distance in the planner.
const EarthRadiusKm = 6371.0

// Location is a point on the map, optionally named. Origins, spots and stops
// are all reduced to a Location when the planner measures or routes between them.
type Location struct {
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
	Name string  `json:"name,omitempty" yaml:"name,omitempty"`
}

// DistanceKm returns the great-circle distance between two points in kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// Between returns the great-circle distance between two locations in kilometers.
func Between(a, b Location) float64 {
	return DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// BoundingBox is a lat/lon rectangle used to prefilter candidates before the
// exact distance check.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoxAround returns a box that contains every point within radiusKm of lat/lon.
// Near the poles the longitude span is widened to the full range.
func BoxAround(lat, lon, radiusKm float64) BoundingBox {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-9 {
		dLon = math.Min(180, dLat/cosLat)
	}
	return BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLon: lon - dLon,
		MaxLon: lon + dLon,
	}
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
