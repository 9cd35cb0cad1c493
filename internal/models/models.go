package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Booking statuses move forward only; cancellation and refund are the
// explicit exceptions handled by the external status engine.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusPaid       BookingStatus = "paid"
	StatusAssigned   BookingStatus = "assigned"
	StatusPickedUp   BookingStatus = "picked_up"
	StatusOnTheWay   BookingStatus = "on_the_way"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusArchived   BookingStatus = "archived"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFrozen   PaymentStatus = "frozen"
	PaymentRefunded PaymentStatus = "refunded"
)

type Booking struct {
	ID                 string        `json:"id"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	ServiceType        string        `json:"service_type"` // delivery, home_help
	AreaType           string        `json:"area_type"`
	CustomerEmail      string        `json:"customer_email"`
	PickupAddress      string        `json:"pickup_address"`
	DeliveryAddress    string        `json:"delivery_address"`
	Pickup             *Coord        `json:"pickup,omitempty"`
	Delivery           *Coord        `json:"delivery,omitempty"`
	TaskLocation       *Coord        `json:"task_location,omitempty"`
	TotalPrice         float64       `json:"total_price"`
	DriverEarnings     float64       `json:"driver_earnings"`
	PlatformFee        float64       `json:"platform_fee"`
	AssignedDriverID   string        `json:"assigned_driver_id"`
	RequiresVehicle    bool          `json:"requires_vehicle"`
	RequiredExpertise  string        `json:"required_expertise"`
	TrackingActive     bool          `json:"tracking_active"`
	CreatedAt          time.Time     `json:"created_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	LastLocationUpdate *time.Time    `json:"last_location_update,omitempty"`
}

// Active reports whether the booking is in an in-flight fulfillment status.
// These statuses feed the demand counter used by dynamic pricing.
func (b Booking) Active() bool {
	switch b.Status {
	case StatusAssigned, StatusOnTheWay, StatusPickedUp, StatusInProgress:
		return true
	}
	return false
}

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
	Offline   Availability = "offline"
)

type Driver struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	Phone           string       `json:"phone"`
	Approved        bool         `json:"approved"`
	DashboardAccess bool         `json:"dashboard_access"`
	Availability    Availability `json:"availability"`
	ServiceAreas    []string     `json:"service_areas"`
	Expertise       []string     `json:"expertise"`
	VehicleType     string       `json:"vehicle_type"` // none, bike, car, van
	CurrentBalance  float64      `json:"current_balance"`
	TotalPaidOut    float64      `json:"total_paid_out"`
	CompletedTasks  int          `json:"completed_tasks"`
	StripeAccountID string       `json:"stripe_account_id,omitempty"`
	BankAccount     string       `json:"bank_account,omitempty"`
}

func (d Driver) HasServiceArea(area string) bool {
	for _, a := range d.ServiceAreas {
		if a == area {
			return true
		}
	}
	return false
}

func (d Driver) HasExpertise(tag string) bool {
	for _, e := range d.Expertise {
		if e == tag {
			return true
		}
	}
	return false
}

type Rating struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	BookingID string    `json:"booking_id"`
	Value     float64   `json:"value"` // 1..5
	CreatedAt time.Time `json:"created_at"`
}

type FlagType string

const (
	FlagDuplicate      FlagType = "duplicate"
	FlagUnpaid         FlagType = "unpaid"
	FlagAbandoned      FlagType = "abandoned"
	FlagStuckAssigned  FlagType = "stuck_assigned"
	FlagStuckProgress  FlagType = "stuck_progress"
	FlagTrackingStale  FlagType = "tracking_stale"
	FlagPaymentPending FlagType = "payment_pending"
	FlagUnassigned     FlagType = "unassigned"
)

type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyFlag is terminal once created; resolution happens outside the core.
type AnomalyFlag struct {
	ID               string    `json:"id"`
	BookingID        string    `json:"booking_id"`
	FlagType         FlagType  `json:"flag_type"`
	Severity         Severity  `json:"severity"`
	Reason           string    `json:"reason"`
	AutoFlagged      bool      `json:"auto_flagged"`
	RelatedBookingID string    `json:"related_booking_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

type Payout struct {
	ID            string       `json:"id"`
	DriverID      string       `json:"driver_id"`
	Amount        float64      `json:"amount"`
	Status        PayoutStatus `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	BankAccount   string       `json:"bank_account,omitempty"`
	RequestedAt   time.Time    `json:"requested_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
}
