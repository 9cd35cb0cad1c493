package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/notify"
	"github.com/example/marketplace-ops/internal/observability"
	"github.com/example/marketplace-ops/internal/storage"
)

// Store is the slice of the entity store the monitor needs.
type Store interface {
	ListBookings(ctx context.Context, f storage.BookingFilter) ([]models.Booking, error)
	HasFlag(ctx context.Context, bookingID string, t models.FlagType) (bool, error)
	CreateFlag(ctx context.Context, f *models.AnomalyFlag) error
}

// Thresholds are the monitor's policy constants.
type Thresholds struct {
	StuckAssigned    time.Duration
	StuckProgress    time.Duration
	TrackingStale    time.Duration
	PaymentPending   time.Duration
	Unassigned       time.Duration
	DuplicateWindow  time.Duration
	AbandonedPending time.Duration
	UnpaidPayment    time.Duration
	ScanWindow       time.Duration
	ScanLimit        int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StuckAssigned:    2 * time.Hour,
		StuckProgress:    4 * time.Hour,
		TrackingStale:    30 * time.Minute,
		PaymentPending:   24 * time.Hour,
		Unassigned:       time.Hour,
		DuplicateWindow:  time.Hour,
		AbandonedPending: 48 * time.Hour,
		UnpaidPayment:    24 * time.Hour,
		ScanWindow:       7 * 24 * time.Hour,
		ScanLimit:        500,
	}
}

// Report aggregates one scan. Partial is set when the context deadline cut
// the scan short; the flags recorded up to that point are still valid.
type Report struct {
	Scanned    int                     `json:"scanned"`
	Flags      []models.AnomalyFlag    `json:"flags"`
	BySeverity map[models.Severity]int `json:"by_severity"`
	Partial    bool                    `json:"partial"`
	Errors     []string                `json:"errors,omitempty"`
}

type Monitor struct {
	store       Store
	gateway     notify.Gateway
	adminEmails []string
	th          Thresholds
	logger      *slog.Logger
	now         func() time.Time
}

func NewMonitor(store Store, gateway notify.Gateway, adminEmails []string, th Thresholds, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: store, gateway: gateway, adminEmails: adminEmails, th: th, logger: logger, now: time.Now}
}

// Scan walks the recent booking window and emits one idempotent flag per
// detected violation per booking per type. Running it twice over an
// unchanged set creates nothing new the second time.
func (m *Monitor) Scan(ctx context.Context) (*Report, error) {
	start := m.now()
	defer func() { observability.ScanDuration.Observe(time.Since(start).Seconds()) }()

	report := &Report{BySeverity: make(map[models.Severity]int)}

	bookings, err := m.store.ListBookings(ctx, storage.BookingFilter{
		CreatedAfter: m.now().Add(-m.th.ScanWindow),
		Limit:        m.th.ScanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	report.Scanned = len(bookings)

	for _, b := range bookings {
		if ctx.Err() != nil {
			report.Partial = true
			return report, nil
		}
		for _, v := range m.violations(b) {
			if err := m.flag(ctx, report, v); err != nil {
				return report, err
			}
		}
	}

	if err := m.duplicatePass(ctx, report, bookings); err != nil {
		return report, err
	}

	if len(report.Flags) > 0 {
		m.notifyAdmins(ctx, report)
	}
	return report, nil
}

type violation struct {
	bookingID string
	flagType  models.FlagType
	severity  models.Severity
	reason    string
	related   string
}

// violations runs the per-booking threshold and staleness checks.
func (m *Monitor) violations(b models.Booking) []violation {
	now := m.now()
	age := now.Sub(b.CreatedAt)
	var out []violation

	if b.Status == models.StatusAssigned && age > m.th.StuckAssigned {
		out = append(out, violation{b.ID, models.FlagStuckAssigned, models.SeverityMedium,
			fmt.Sprintf("assigned for %s without progress", age.Round(time.Minute)), ""})
	}
	if (b.Status == models.StatusPickedUp || b.Status == models.StatusInProgress) && age > m.th.StuckProgress {
		out = append(out, violation{b.ID, models.FlagStuckProgress, models.SeverityHigh,
			fmt.Sprintf("in progress for %s", age.Round(time.Minute)), ""})
	}
	if b.TrackingActive && b.LastLocationUpdate != nil && now.Sub(*b.LastLocationUpdate) > m.th.TrackingStale {
		out = append(out, violation{b.ID, models.FlagTrackingStale, models.SeverityMedium,
			fmt.Sprintf("no location update for %s", now.Sub(*b.LastLocationUpdate).Round(time.Minute)), ""})
	}
	if b.Status == models.StatusCompleted && b.PaymentStatus == models.PaymentPending {
		since := b.CreatedAt
		if b.CompletedAt != nil {
			since = *b.CompletedAt
		}
		if now.Sub(since) > m.th.PaymentPending {
			out = append(out, violation{b.ID, models.FlagPaymentPending, models.SeverityHigh,
				"completed but payment still pending after 24h", ""})
		}
	}
	if b.Status == models.StatusPending && b.AssignedDriverID == "" && age > m.th.Unassigned {
		out = append(out, violation{b.ID, models.FlagUnassigned, models.SeverityHigh,
			fmt.Sprintf("pending without a driver for %s", age.Round(time.Minute)), ""})
	}

	// stale-submission checks
	if b.Status == models.StatusPending && age > m.th.AbandonedPending {
		out = append(out, violation{b.ID, models.FlagAbandoned, models.SeverityMedium,
			fmt.Sprintf("pending since %s", b.CreatedAt.Format(time.RFC3339)), ""})
	}
	if b.Status != models.StatusCancelled && b.Status != models.StatusArchived &&
		b.PaymentStatus == models.PaymentPending && age > m.th.UnpaidPayment {
		out = append(out, violation{b.ID, models.FlagUnpaid, models.SeverityMedium,
			"payment pending for more than 24h", ""})
	}
	return out
}

// duplicatePass groups bookings by customer and route and flags the later
// booking of any pair submitted within the duplicate window.
func (m *Monitor) duplicatePass(ctx context.Context, report *Report, bookings []models.Booking) error {
	groups := make(map[string][]models.Booking)
	for _, b := range bookings {
		key := strings.ToLower(b.CustomerEmail) + "|" + b.PickupAddress + "|" + b.DeliveryAddress
		groups[key] = append(groups[key], b)
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
		for i := 1; i < len(group); i++ {
			if ctx.Err() != nil {
				report.Partial = true
				return nil
			}
			prev, cur := group[i-1], group[i]
			if cur.CreatedAt.Sub(prev.CreatedAt) > m.th.DuplicateWindow {
				continue
			}
			v := violation{cur.ID, models.FlagDuplicate, models.SeverityMedium,
				fmt.Sprintf("same customer and route as booking %s within %s", prev.ID, m.th.DuplicateWindow), prev.ID}
			if err := m.flag(ctx, report, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// flag creates one anomaly flag, skipping silently when a flag of the same
// type already exists. The store's uniqueness guarantee closes the
// check-then-act race under concurrent monitor runs.
func (m *Monitor) flag(ctx context.Context, report *Report, v violation) error {
	exists, err := m.store.HasFlag(ctx, v.bookingID, v.flagType)
	if err != nil {
		return fmt.Errorf("flag lookup for %s: %w", v.bookingID, err)
	}
	if exists {
		return nil
	}
	f := models.AnomalyFlag{
		BookingID:        v.bookingID,
		FlagType:         v.flagType,
		Severity:         v.severity,
		Reason:           v.reason,
		AutoFlagged:      true,
		RelatedBookingID: v.related,
		CreatedAt:        m.now(),
	}
	if err := m.store.CreateFlag(ctx, &f); err != nil {
		if errors.Is(err, storage.ErrDuplicateFlag) {
			return nil
		}
		return fmt.Errorf("create flag for %s: %w", v.bookingID, err)
	}
	report.Flags = append(report.Flags, f)
	report.BySeverity[f.Severity]++
	observability.FlagsCreated.WithLabelValues(string(f.FlagType), string(f.Severity)).Inc()
	return nil
}

// notifyAdmins sends a severity-grouped summary. Delivery failures are
// recorded on the report but never fail the scan.
func (m *Monitor) notifyAdmins(ctx context.Context, report *Report) {
	if m.gateway == nil || len(m.adminEmails) == 0 {
		return
	}
	subject := fmt.Sprintf("Anomaly scan: %d new flags (%d high, %d medium)",
		len(report.Flags), report.BySeverity[models.SeverityHigh], report.BySeverity[models.SeverityMedium])
	body := renderReport(report)
	for _, email := range m.adminEmails {
		if err := m.gateway.SendEmail(ctx, email, subject, body); err != nil {
			m.logger.Warn("admin notification failed", "to", email, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("notify %s: %v", email, err))
		}
	}
}

func renderReport(report *Report) string {
	var sb strings.Builder
	sb.WriteString("<h3>Anomaly report</h3>")
	for _, sev := range []models.Severity{models.SeverityHigh, models.SeverityMedium} {
		if report.BySeverity[sev] == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("<h4>%s severity</h4><ul>", sev))
		for _, f := range report.Flags {
			if f.Severity != sev {
				continue
			}
			sb.WriteString(fmt.Sprintf("<li>booking %s [%s]: %s</li>", f.BookingID, f.FlagType, f.Reason))
		}
		sb.WriteString("</ul>")
	}
	return sb.String()
}
