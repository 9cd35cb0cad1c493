package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/storage"
)

func newTestScorer(store *storage.MemoryStore) *Scorer {
	return NewScorer(store, DefaultConfig())
}

func TestUnavailableDriverExcluded(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{ID: "b1", Status: models.StatusPaid, ServiceType: "delivery", AreaType: "city", CreatedAt: time.Now()})
	store.PutDriver(models.Driver{ID: "busy", Availability: models.Busy, ServiceAreas: []string{"city"}})
	store.PutDriver(models.Driver{ID: "off", Availability: models.Offline, ServiceAreas: []string{"city"}})
	store.PutDriver(models.Driver{ID: "free", Availability: models.Available, ServiceAreas: []string{"city"}})

	matches, err := newTestScorer(store).Match(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Driver.ID != "free" {
		t.Fatalf("expected only the available driver, got %+v", matches)
	}
}

func TestVehicleGate(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{ID: "b1", Status: models.StatusPaid, ServiceType: "delivery", AreaType: "city", RequiresVehicle: true, CreatedAt: time.Now()})
	store.PutDriver(models.Driver{ID: "walker", Availability: models.Available, ServiceAreas: []string{"city"}, VehicleType: "none"})
	store.PutDriver(models.Driver{ID: "rider", Availability: models.Available, ServiceAreas: []string{"city"}, VehicleType: "bike"})

	matches, err := newTestScorer(store).Match(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Driver.ID != "rider" {
		t.Fatalf("expected the vehicle-less driver gated out, got %+v", matches)
	}
}

func TestScoreClampedAt100(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{
		ID: "b1", Status: models.StatusPaid, ServiceType: "home_help", AreaType: "city",
		RequiredExpertise: "plumbing", CreatedAt: time.Now(),
	})
	store.PutDriver(models.Driver{
		ID: "star", Availability: models.Available,
		ServiceAreas: []string{"city"}, Expertise: []string{"plumbing"}, VehicleType: "car",
	})
	// perfect history: ten completed similar tasks, all recent, all five-star
	for i := 0; i < 10; i++ {
		store.PutBooking(models.Booking{
			Status: models.StatusCompleted, ServiceType: "home_help",
			AssignedDriverID: "star", CreatedAt: time.Now().Add(-time.Hour),
		})
		store.PutRating(models.Rating{DriverID: "star", Value: 5})
	}

	matches, err := newTestScorer(store).Match(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	if matches[0].Score != 100 {
		t.Fatalf("expected clamped score 100, got %f", matches[0].Score)
	}
	if matches[0].Tier != "excellent" {
		t.Fatalf("expected excellent tier, got %s", matches[0].Tier)
	}
}

func TestTieBreakByRating(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{ID: "b1", Status: models.StatusPaid, ServiceType: "delivery", AreaType: "city", CreatedAt: time.Now()})
	// both drivers carry one active booking and a mid-bucket rating, so
	// scores tie and the higher numeric average decides
	for _, d := range []struct {
		id     string
		rating float64
	}{{"lower", 4.0}, {"higher", 4.4}} {
		store.PutDriver(models.Driver{ID: d.id, Availability: models.Available, ServiceAreas: []string{"city"}})
		store.PutBooking(models.Booking{
			Status: models.StatusAssigned, ServiceType: "delivery",
			AssignedDriverID: d.id, CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
		})
		store.PutRating(models.Rating{DriverID: d.id, Value: d.rating})
	}

	matches, err := newTestScorer(store).Match(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d", len(matches))
	}
	if matches[0].Score != matches[1].Score {
		t.Fatalf("expected a score tie, got %f vs %f", matches[0].Score, matches[1].Score)
	}
	if matches[0].Driver.ID != "higher" {
		t.Fatalf("expected rating tie-break to pick 'higher', got %s", matches[0].Driver.ID)
	}
}

func TestMatchBookingNotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := newTestScorer(store).Match(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNoEligibleCandidatesIsEmptyNotError(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{ID: "b1", Status: models.StatusPaid, ServiceType: "delivery", AreaType: "city", CreatedAt: time.Now()})

	matches, err := newTestScorer(store).Match(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty match list, got %d", len(matches))
	}
}

func TestAssignSideEffects(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{ID: "b1", Status: models.StatusPaid, ServiceType: "delivery", TotalPrice: 100, CreatedAt: time.Now()})
	store.PutDriver(models.Driver{ID: "d1", Availability: models.Available})

	booking, err := newTestScorer(store).Assign(context.Background(), "b1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != models.StatusAssigned {
		t.Fatalf("expected assigned status, got %s", booking.Status)
	}
	if booking.DriverEarnings != 80 || booking.PlatformFee != 20 {
		t.Fatalf("expected 80/20 split, got %f/%f", booking.DriverEarnings, booking.PlatformFee)
	}
	d, err := store.GetDriver(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Availability != models.Busy {
		t.Fatalf("expected driver busy, got %s", d.Availability)
	}
}
