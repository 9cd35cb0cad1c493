package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/marketplace-ops/internal/models"
)

// PostgresStore implements Store over database/sql. Settlement runs in a
// transaction; flag uniqueness is enforced by a unique index on
// (booking_id, flag_type).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const bookingCols = `id, status, payment_status, service_type, area_type, customer_email,
	pickup_address, delivery_address, pickup_lat, pickup_lng, delivery_lat, delivery_lng,
	total_price, driver_earnings, platform_fee, assigned_driver_id, requires_vehicle,
	required_expertise, tracking_active, created_at, completed_at, last_location_update`

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (p *PostgresStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	q := `SELECT ` + bookingCols + ` FROM bookings WHERE 1=1`
	args := []any{}
	if len(f.Statuses) > 0 {
		ss := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			ss = append(ss, string(s))
		}
		args = append(args, pq.Array(ss))
		q += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if !f.CreatedAfter.IsZero() {
		args = append(args, f.CreatedAfter)
		q += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	q += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	res, err := p.db.ExecContext(ctx, `UPDATE bookings SET status=$1, payment_status=$2,
		total_price=$3, driver_earnings=$4, platform_fee=$5, assigned_driver_id=$6,
		tracking_active=$7, completed_at=$8, last_location_update=$9 WHERE id=$10`,
		b.Status, b.PaymentStatus, b.TotalPrice, b.DriverEarnings, b.PlatformFee,
		nullStr(b.AssignedDriverID), b.TrackingActive, b.CompletedAt, b.LastLocationUpdate, b.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var activeStatuses = pq.Array([]string{
	string(models.StatusAssigned), string(models.StatusOnTheWay),
	string(models.StatusPickedUp), string(models.StatusInProgress),
})

func (p *PostgresStore) CountActiveBookings(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE status = ANY($1)`, activeStatuses).Scan(&n)
	return n, err
}

func (p *PostgresStore) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	return p.ListBookings(ctx, BookingFilter{Statuses: []models.BookingStatus{
		models.StatusAssigned, models.StatusOnTheWay, models.StatusPickedUp, models.StatusInProgress,
	}})
}

func (p *PostgresStore) ListBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE assigned_driver_id=$1 ORDER BY created_at ASC`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

const driverCols = `id, name, email, phone, approved, dashboard_access, availability,
	service_areas, expertise, vehicle_type, current_balance, total_paid_out,
	completed_tasks, stripe_account_id, bank_account`

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE id=$1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	return p.queryDrivers(ctx, `SELECT `+driverCols+` FROM drivers ORDER BY id`)
}

func (p *PostgresStore) ListPayableDrivers(ctx context.Context, minBalance float64) ([]models.Driver, error) {
	return p.queryDrivers(ctx, `SELECT `+driverCols+` FROM drivers
		WHERE approved AND dashboard_access AND current_balance >= $1 ORDER BY id`, minBalance)
}

func (p *PostgresStore) queryDrivers(ctx context.Context, q string, args ...any) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateDriver(ctx context.Context, d *models.Driver) error {
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET availability=$1, current_balance=$2,
		total_paid_out=$3, completed_tasks=$4 WHERE id=$5`,
		d.Availability, d.CurrentBalance, d.TotalPaidOut, d.CompletedTasks, d.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SettleDriver(ctx context.Context, driverID string, minBalance float64, method string) (*models.Payout, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance float64
	var bank sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT current_balance, bank_account FROM drivers WHERE id=$1 FOR UPDATE`, driverID).
		Scan(&balance, &bank)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if balance < minBalance {
		return nil, ErrNothingToSettle
	}

	now := time.Now()
	pay := models.Payout{
		ID:            newID(),
		DriverID:      driverID,
		Amount:        balance,
		Status:        models.PayoutCompleted,
		PaymentMethod: method,
		BankAccount:   bank.String,
		RequestedAt:   now,
		ProcessedAt:   &now,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO payouts(id, driver_id, amount, status,
		payment_method, bank_account, requested_at, processed_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		pay.ID, pay.DriverID, pay.Amount, pay.Status, pay.PaymentMethod, pay.BankAccount,
		pay.RequestedAt, pay.ProcessedAt); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE drivers SET current_balance=0,
		total_paid_out=total_paid_out+$1 WHERE id=$2`, balance, driverID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &pay, nil
}

func (p *PostgresStore) ListRatingsByDriver(ctx context.Context, driverID string) ([]models.Rating, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, driver_id, booking_id, value, created_at FROM ratings WHERE driver_id=$1`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.DriverID, &r.BookingID, &r.Value, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListActivePricingRules(ctx context.Context) ([]models.PricingRule, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, rule_type, priority, adjustment_type,
		adjustment_value, is_active, conditions FROM pricing_rules
		WHERE is_active ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PricingRule
	for rows.Next() {
		var r models.PricingRule
		var raw json.RawMessage
		if err := rows.Scan(&r.ID, &r.Name, &r.RuleType, &r.Priority, &r.AdjustmentType,
			&r.AdjustmentValue, &r.IsActive, &raw); err != nil {
			return nil, err
		}
		if err := models.DecodeRuleConditions(&r, raw); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HasFlag(ctx context.Context, bookingID string, t models.FlagType) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM anomaly_flags WHERE booking_id=$1 AND flag_type=$2)`,
		bookingID, t).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) CreateFlag(ctx context.Context, f *models.AnomalyFlag) error {
	if f.ID == "" {
		f.ID = newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	res, err := p.db.ExecContext(ctx, `INSERT INTO anomaly_flags(id, booking_id, flag_type,
		severity, reason, auto_flagged, related_booking_id, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (booking_id, flag_type) DO NOTHING`,
		f.ID, f.BookingID, f.FlagType, f.Severity, f.Reason, f.AutoFlagged,
		nullStr(f.RelatedBookingID), f.CreatedAt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrDuplicateFlag
	}
	return nil
}

func (p *PostgresStore) ListFlags(ctx context.Context, bookingID string) ([]models.AnomalyFlag, error) {
	q := `SELECT id, booking_id, flag_type, severity, reason, auto_flagged,
		COALESCE(related_booking_id, ''), created_at FROM anomaly_flags`
	args := []any{}
	if bookingID != "" {
		q += ` WHERE booking_id=$1`
		args = append(args, bookingID)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AnomalyFlag
	for rows.Next() {
		var f models.AnomalyFlag
		if err := rows.Scan(&f.ID, &f.BookingID, &f.FlagType, &f.Severity, &f.Reason,
			&f.AutoFlagged, &f.RelatedBookingID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var pickupLat, pickupLng, deliveryLat, deliveryLng sql.NullFloat64
	var driverID, reqExp sql.NullString
	err := row.Scan(&b.ID, &b.Status, &b.PaymentStatus, &b.ServiceType, &b.AreaType,
		&b.CustomerEmail, &b.PickupAddress, &b.DeliveryAddress,
		&pickupLat, &pickupLng, &deliveryLat, &deliveryLng,
		&b.TotalPrice, &b.DriverEarnings, &b.PlatformFee, &driverID, &b.RequiresVehicle,
		&reqExp, &b.TrackingActive, &b.CreatedAt, &b.CompletedAt, &b.LastLocationUpdate)
	if err != nil {
		return nil, err
	}
	b.AssignedDriverID = driverID.String
	b.RequiredExpertise = reqExp.String
	if pickupLat.Valid && pickupLng.Valid {
		b.Pickup = &models.Coord{Lat: pickupLat.Float64, Lng: pickupLng.Float64}
	}
	if deliveryLat.Valid && deliveryLng.Valid {
		b.Delivery = &models.Coord{Lat: deliveryLat.Float64, Lng: deliveryLng.Float64}
	}
	return &b, nil
}

func scanDriver(row rowScanner) (*models.Driver, error) {
	var d models.Driver
	var areas, tags pq.StringArray
	var stripeID, bank sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.Approved, &d.DashboardAccess,
		&d.Availability, &areas, &tags, &d.VehicleType, &d.CurrentBalance, &d.TotalPaidOut,
		&d.CompletedTasks, &stripeID, &bank)
	if err != nil {
		return nil, err
	}
	d.ServiceAreas = areas
	d.Expertise = tags
	d.StripeAccountID = stripeID.String
	d.BankAccount = bank.String
	return &d, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
