package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/example/marketplace-ops/internal/models"
)

var (
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateFlag is returned when an open flag of the same type already
	// exists for the booking. Callers treat it as an idempotent no-op.
	ErrDuplicateFlag = errors.New("flag already exists")
	// ErrNothingToSettle is returned when a driver's balance dropped below the
	// payout minimum between selection and settlement.
	ErrNothingToSettle = errors.New("balance below payout minimum")
)

// BookingFilter bounds booking scans. Zero values mean "no constraint".
type BookingFilter struct {
	Statuses     []models.BookingStatus
	CreatedAfter time.Time
	Limit        int
}

// Store is the entity-store surface the decision engine consumes. Each
// component depends on the narrow subset it needs; MemoryStore and
// PostgresStore implement the whole thing.
type Store interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	CountActiveBookings(ctx context.Context) (int, error)
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	ListBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error)

	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	UpdateDriver(ctx context.Context, d *models.Driver) error
	ListPayableDrivers(ctx context.Context, minBalance float64) ([]models.Driver, error)
	// SettleDriver atomically creates a completed payout for the driver's full
	// balance, zeroes the balance and accumulates total_paid_out. The minimum
	// is re-checked inside the settlement unit.
	SettleDriver(ctx context.Context, driverID string, minBalance float64, method string) (*models.Payout, error)

	ListRatingsByDriver(ctx context.Context, driverID string) ([]models.Rating, error)

	// ListActivePricingRules returns active rules ordered by priority
	// descending; ties keep the store's stable order.
	ListActivePricingRules(ctx context.Context) ([]models.PricingRule, error)

	HasFlag(ctx context.Context, bookingID string, t models.FlagType) (bool, error)
	// CreateFlag enforces at-most-one flag per (booking, type) at the store
	// boundary and returns ErrDuplicateFlag on conflict.
	CreateFlag(ctx context.Context, f *models.AnomalyFlag) error
	ListFlags(ctx context.Context, bookingID string) ([]models.AnomalyFlag, error)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
