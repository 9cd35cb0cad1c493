package geo

import (
	"math"

	"github.com/example/marketplace-ops/internal/models"
)

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b models.Coord) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// DistanceKm is Haversine expressed in kilometers.
func DistanceKm(a, b models.Coord) float64 {
	return Haversine(a, b) / 1000.0
}

// WithinKm reports whether b lies within radiusKm of a.
func WithinKm(a, b models.Coord, radiusKm float64) bool {
	return DistanceKm(a, b) <= radiusKm
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
