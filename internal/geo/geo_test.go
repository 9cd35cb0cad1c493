package geo

import (
	"math"
	"testing"

	"github.com/example/marketplace-ops/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(models.Coord{}, models.Coord{})
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.19 km
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 1, Lng: 0}
	km := DistanceKm(a, b)
	if math.Abs(km-111.19) > 0.5 {
		t.Fatalf("expected ~111.19km, got %f", km)
	}
}

func TestWithinKm(t *testing.T) {
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 0.01, Lng: 0} // ~1.1km
	if !WithinKm(a, b, 2) {
		t.Fatal("expected within 2km")
	}
	if WithinKm(a, b, 1) {
		t.Fatal("expected outside 1km")
	}
}
