package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/marketplace-ops/internal/models"
)

// MemoryStore backs tests and bare local runs. A single mutex keeps
// settlement and flag creation atomic the same way the Postgres
// implementation does with transactions and unique indexes.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	drivers  map[string]*models.Driver
	ratings  []models.Rating
	rules    []models.PricingRule
	flags    []models.AnomalyFlag
	payouts  []models.Payout
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		drivers:  make(map[string]*models.Driver),
	}
}

// Seed helpers used by tests and local bootstrap.

func (m *MemoryStore) PutBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	cp := b
	m.bookings[b.ID] = &cp
}

func (m *MemoryStore) PutDriver(d models.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	cp := d
	m.drivers[d.ID] = &cp
}

func (m *MemoryStore) PutRating(r models.Rating) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	m.ratings = append(m.ratings, r)
}

func (m *MemoryStore) PutRule(r models.PricingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	m.rules = append(m.rules, r)
}

func (m *MemoryStore) Payouts() []models.Payout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Payout, len(m.payouts))
	copy(out, m.payouts)
	return out
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if !f.CreatedAfter.IsZero() && !b.CreatedAt.After(f.CreatedAfter) {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(b.Status, f.Statuses) {
			continue
		}
		out = append(out, *b)
	}
	// oldest first, ID as a deterministic tie-break
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) CountActiveBookings(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, b := range m.bookings {
		if b.Active() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.Active() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.AssignedDriverID == driverID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateDriver(ctx context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.drivers[d.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPayableDrivers(ctx context.Context, minBalance float64) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Driver
	for _, d := range m.drivers {
		if d.Approved && d.DashboardAccess && d.CurrentBalance >= minBalance {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SettleDriver(ctx context.Context, driverID string, minBalance float64, method string) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	if d.CurrentBalance < minBalance {
		return nil, ErrNothingToSettle
	}
	now := time.Now()
	p := models.Payout{
		ID:            newID(),
		DriverID:      driverID,
		Amount:        d.CurrentBalance,
		Status:        models.PayoutCompleted,
		PaymentMethod: method,
		BankAccount:   d.BankAccount,
		RequestedAt:   now,
		ProcessedAt:   &now,
	}
	d.TotalPaidOut += d.CurrentBalance
	d.CurrentBalance = 0
	m.payouts = append(m.payouts, p)
	return &p, nil
}

func (m *MemoryStore) ListRatingsByDriver(ctx context.Context, driverID string) ([]models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Rating
	for _, r := range m.ratings {
		if r.DriverID == driverID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListActivePricingRules(ctx context.Context) ([]models.PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PricingRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	// stable sort keeps insertion order on equal priorities
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (m *MemoryStore) HasFlag(ctx context.Context, bookingID string, t models.FlagType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasFlagLocked(bookingID, t), nil
}

func (m *MemoryStore) CreateFlag(ctx context.Context, f *models.AnomalyFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasFlagLocked(f.BookingID, f.FlagType) {
		return ErrDuplicateFlag
	}
	if f.ID == "" {
		f.ID = newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	m.flags = append(m.flags, *f)
	return nil
}

func (m *MemoryStore) ListFlags(ctx context.Context, bookingID string) ([]models.AnomalyFlag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AnomalyFlag
	for _, f := range m.flags {
		if bookingID == "" || f.BookingID == bookingID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) hasFlagLocked(bookingID string, t models.FlagType) bool {
	for _, f := range m.flags {
		if f.BookingID == bookingID && f.FlagType == t {
			return true
		}
	}
	return false
}

func statusIn(s models.BookingStatus, list []models.BookingStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
