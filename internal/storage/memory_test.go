package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/marketplace-ops/internal/models"
)

func TestGetBookingNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetBooking(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBookingsFilterAndOrder(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	s.PutBooking(models.Booking{ID: "b", Status: models.StatusPending, CreatedAt: base.Add(10 * time.Minute)})
	s.PutBooking(models.Booking{ID: "a", Status: models.StatusPending, CreatedAt: base.Add(10 * time.Minute)})
	s.PutBooking(models.Booking{ID: "c", Status: models.StatusCompleted, CreatedAt: base.Add(20 * time.Minute)})
	s.PutBooking(models.Booking{ID: "old", Status: models.StatusPending, CreatedAt: base.Add(-time.Hour)})

	out, err := s.ListBookings(context.Background(), BookingFilter{CreatedAfter: base})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 bookings inside the window, got %d", len(out))
	}
	// oldest first, ID breaks the tie
	if out[0].ID != "a" || out[1].ID != "b" || out[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", out[0].ID, out[1].ID, out[2].ID)
	}

	out, err = s.ListBookings(context.Background(), BookingFilter{
		Statuses: []models.BookingStatus{models.StatusCompleted},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "c" {
		t.Fatalf("status filter failed: %+v", out)
	}

	out, _ = s.ListBookings(context.Background(), BookingFilter{Limit: 2})
	if len(out) != 2 {
		t.Fatalf("limit not applied, got %d", len(out))
	}
}

func TestUpdateBookingCopies(t *testing.T) {
	s := NewMemoryStore()
	s.PutBooking(models.Booking{ID: "b1", Status: models.StatusPending})

	b, _ := s.GetBooking(context.Background(), "b1")
	b.Status = models.StatusAssigned
	if err := s.UpdateBooking(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	// mutating the caller's copy after the update must not leak in
	b.Status = models.StatusCancelled

	got, _ := s.GetBooking(context.Background(), "b1")
	if got.Status != models.StatusAssigned {
		t.Fatalf("expected assigned, got %s", got.Status)
	}
}

func TestCreateFlagUniquePerBookingAndType(t *testing.T) {
	s := NewMemoryStore()
	f := models.AnomalyFlag{BookingID: "b1", FlagType: models.FlagStuckAssigned, Severity: models.SeverityMedium}
	if err := s.CreateFlag(context.Background(), &f); err != nil {
		t.Fatal(err)
	}
	dup := models.AnomalyFlag{BookingID: "b1", FlagType: models.FlagStuckAssigned, Severity: models.SeverityMedium}
	if err := s.CreateFlag(context.Background(), &dup); !errors.Is(err, ErrDuplicateFlag) {
		t.Fatalf("expected ErrDuplicateFlag, got %v", err)
	}
	// a different type on the same booking is fine
	other := models.AnomalyFlag{BookingID: "b1", FlagType: models.FlagUnpaid, Severity: models.SeverityMedium}
	if err := s.CreateFlag(context.Background(), &other); err != nil {
		t.Fatal(err)
	}
	flags, _ := s.ListFlags(context.Background(), "b1")
	if len(flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(flags))
	}
}

func TestSettleDriver(t *testing.T) {
	s := NewMemoryStore()
	s.PutDriver(models.Driver{ID: "d1", CurrentBalance: 250, BankAccount: "NL00TEST"})

	p, err := s.SettleDriver(context.Background(), "d1", 100, "bank_transfer")
	if err != nil {
		t.Fatal(err)
	}
	if p.Amount != 250 || p.Status != models.PayoutCompleted || p.BankAccount != "NL00TEST" {
		t.Fatalf("unexpected payout: %+v", p)
	}
	d, _ := s.GetDriver(context.Background(), "d1")
	if d.CurrentBalance != 0 || d.TotalPaidOut != 250 {
		t.Fatalf("settlement did not update driver: %+v", d)
	}

	if _, err := s.SettleDriver(context.Background(), "d1", 100, "bank_transfer"); !errors.Is(err, ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle on a drained balance, got %v", err)
	}
	if _, err := s.SettleDriver(context.Background(), "missing", 100, "bank_transfer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActivePricingRulesOrdering(t *testing.T) {
	s := NewMemoryStore()
	s.PutRule(models.PricingRule{ID: "low", RuleType: models.RuleTimeBased, Priority: 1, IsActive: true})
	s.PutRule(models.PricingRule{ID: "off", RuleType: models.RuleTimeBased, Priority: 9, IsActive: false})
	s.PutRule(models.PricingRule{ID: "high", RuleType: models.RuleTimeBased, Priority: 5, IsActive: true})

	rules, err := s.ListActivePricingRules(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].ID != "high" || rules[1].ID != "low" {
		t.Fatalf("unexpected rule order: %+v", rules)
	}
}

func TestCountActiveBookings(t *testing.T) {
	s := NewMemoryStore()
	s.PutBooking(models.Booking{ID: "a", Status: models.StatusAssigned})
	s.PutBooking(models.Booking{ID: "b", Status: models.StatusInProgress})
	s.PutBooking(models.Booking{ID: "c", Status: models.StatusCompleted})

	n, err := s.CountActiveBookings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 active bookings, got %d", n)
	}
}
