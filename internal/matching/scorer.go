package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/observability"
)

// Store is the slice of the entity store the scorer needs.
type Store interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	UpdateDriver(ctx context.Context, d *models.Driver) error
	ListBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error)
	ListRatingsByDriver(ctx context.Context, driverID string) ([]models.Rating, error)
}

// Weights is the single canonical scoring table. The source system carried
// two divergent formulas for the same decision; this table replaces both.
type Weights struct {
	BaseAvailability  float64
	ServiceArea       float64
	ExpertiseFull     float64
	ExpertiseFallback float64
	ExpertiseMismatch float64
	CompletionHigh    float64 // completion rate >= 90%
	CompletionMid     float64 // >= 75%
	CompletionLow     float64 // below 75%, applied as-is (negative)
	RatingHigh        float64 // avg >= 4.5
	RatingMid         float64 // avg >= 4.0
	RatingLow         float64 // avg < 3.5, applied as-is (negative)
	ExperienceHigh    float64 // >= 5 completed bookings of same service type
	ExperienceMid     float64 // >= 2
	NoWorkloadBonus   float64 // zero active bookings
	OverloadPenalty   float64 // two or more active bookings, applied as-is
	RecencyBonus      float64 // >= 3 bookings in the trailing 7 days
}

func DefaultWeights() Weights {
	return Weights{
		BaseAvailability:  20,
		ServiceArea:       15,
		ExpertiseFull:     20,
		ExpertiseFallback: 10,
		ExpertiseMismatch: -10,
		CompletionHigh:    15,
		CompletionMid:     8,
		CompletionLow:     -5,
		RatingHigh:        15,
		RatingMid:         8,
		RatingLow:         -10,
		ExperienceHigh:    10,
		ExperienceMid:     5,
		NoWorkloadBonus:   5,
		OverloadPenalty:   -10,
		RecencyBonus:      5,
	}
}

type Config struct {
	Weights        Weights
	MinViableScore float64
	TopN           int
	TierExcellent  float64
	TierGood       float64
	DriverShare    float64 // driver's cut of total price on assignment
}

func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		MinViableScore: 20,
		TopN:           5,
		TierExcellent:  70,
		TierGood:       50,
		DriverShare:    0.80,
	}
}

// Candidate is one scored driver, ranked and annotated for the dispatcher.
type Candidate struct {
	Driver         models.Driver `json:"driver"`
	Score          float64       `json:"score"`
	Tier           string        `json:"tier"`
	Reasons        []string      `json:"reasons"`
	ActiveBookings int           `json:"active_bookings"`
	AvgRating      float64       `json:"avg_rating"`
}

type Scorer struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewScorer(store Store, cfg Config) *Scorer {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Scorer{store: store, cfg: cfg, now: time.Now}
}

// Match scores every candidate driver against the booking and returns the
// top matches in descending suitability. An empty result is not an error.
func (s *Scorer) Match(ctx context.Context, bookingID string) ([]Candidate, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	viable := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		c, err := s.score(ctx, booking, d)
		if err != nil {
			return nil, err
		}
		observability.CandidatesScored.Inc()
		if c.Score < s.cfg.MinViableScore {
			continue
		}
		viable = append(viable, c)
	}

	sort.SliceStable(viable, func(i, j int) bool {
		if viable[i].Score != viable[j].Score {
			return viable[i].Score > viable[j].Score
		}
		if viable[i].ActiveBookings != viable[j].ActiveBookings {
			return viable[i].ActiveBookings < viable[j].ActiveBookings
		}
		return viable[i].AvgRating > viable[j].AvgRating
	})

	if len(viable) > s.cfg.TopN {
		viable = viable[:s.cfg.TopN]
	}
	observability.MatchRequests.Inc()
	return viable, nil
}

func (s *Scorer) score(ctx context.Context, booking *models.Booking, d models.Driver) (Candidate, error) {
	c := Candidate{Driver: d}

	// hard gates first; gated drivers get no further rationale
	if d.Availability != models.Available {
		c.Reasons = []string{"unavailable"}
		return c, nil
	}
	if booking.RequiresVehicle && (d.VehicleType == "" || d.VehicleType == "none") {
		c.Reasons = []string{"no vehicle"}
		return c, nil
	}

	w := s.cfg.Weights
	score := w.BaseAvailability
	c.Reasons = append(c.Reasons, "available now")

	if d.HasServiceArea(booking.AreaType) {
		score += w.ServiceArea
		c.Reasons = append(c.Reasons, fmt.Sprintf("serves %s area", booking.AreaType))
	}

	if booking.ServiceType == "home_help" && booking.RequiredExpertise != "" {
		switch {
		case d.HasExpertise(booking.RequiredExpertise):
			score += w.ExpertiseFull
			c.Reasons = append(c.Reasons, fmt.Sprintf("expert in %s", booking.RequiredExpertise))
		case d.HasExpertise("household_help"):
			score += w.ExpertiseFallback
			c.Reasons = append(c.Reasons, "general household help capability")
		default:
			score += w.ExpertiseMismatch
			c.Reasons = append(c.Reasons, fmt.Sprintf("no %s expertise", booking.RequiredExpertise))
		}
	}

	history, err := s.store.ListBookingsByDriver(ctx, d.ID)
	if err != nil {
		return c, fmt.Errorf("driver %s history: %w", d.ID, err)
	}
	var completed, similar, active, recent int
	weekAgo := s.now().AddDate(0, 0, -7)
	for _, h := range history {
		if h.Status == models.StatusCompleted {
			completed++
			if h.ServiceType == booking.ServiceType {
				similar++
			}
		}
		if h.Active() {
			active++
		}
		if h.CreatedAt.After(weekAgo) {
			recent++
		}
	}
	c.ActiveBookings = active

	if len(history) > 0 {
		rate := float64(completed) / float64(len(history))
		switch {
		case rate >= 0.90:
			score += w.CompletionHigh
			c.Reasons = append(c.Reasons, "excellent completion rate")
		case rate >= 0.75:
			score += w.CompletionMid
			c.Reasons = append(c.Reasons, "good completion rate")
		default:
			score += w.CompletionLow
			c.Reasons = append(c.Reasons, "low completion rate")
		}
	}

	ratings, err := s.store.ListRatingsByDriver(ctx, d.ID)
	if err != nil {
		return c, fmt.Errorf("driver %s ratings: %w", d.ID, err)
	}
	if len(ratings) > 0 {
		var sum float64
		for _, r := range ratings {
			sum += r.Value
		}
		avg := sum / float64(len(ratings))
		c.AvgRating = avg
		switch {
		case avg >= 4.5:
			score += w.RatingHigh
			c.Reasons = append(c.Reasons, fmt.Sprintf("top rated (%.1f)", avg))
		case avg >= 4.0:
			score += w.RatingMid
			c.Reasons = append(c.Reasons, fmt.Sprintf("well rated (%.1f)", avg))
		case avg < 3.5:
			score += w.RatingLow
			c.Reasons = append(c.Reasons, fmt.Sprintf("poorly rated (%.1f)", avg))
		}
	}

	switch {
	case similar >= 5:
		score += w.ExperienceHigh
		c.Reasons = append(c.Reasons, fmt.Sprintf("completed %d similar tasks", similar))
	case similar >= 2:
		score += w.ExperienceMid
		c.Reasons = append(c.Reasons, fmt.Sprintf("completed %d similar tasks", similar))
	}

	switch {
	case active == 0:
		score += w.NoWorkloadBonus
		c.Reasons = append(c.Reasons, "no current workload")
	case active >= 2:
		score += w.OverloadPenalty
		c.Reasons = append(c.Reasons, fmt.Sprintf("%d active bookings", active))
	}

	if recent >= 3 {
		score += w.RecencyBonus
		c.Reasons = append(c.Reasons, "recently active")
	}

	c.Score = clamp(score, 0, 100)
	c.Tier = s.tier(c.Score)
	return c, nil
}

func (s *Scorer) tier(score float64) string {
	switch {
	case score >= s.cfg.TierExcellent:
		return "excellent"
	case score >= s.cfg.TierGood:
		return "good"
	default:
		return "acceptable"
	}
}

// Assign records the dispatcher's acceptance of a match: the booking moves
// to assigned with the earnings split computed, and the driver goes busy.
func (s *Scorer) Assign(ctx context.Context, bookingID, driverID string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	driver, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}

	booking.Status = models.StatusAssigned
	booking.AssignedDriverID = driver.ID
	booking.DriverEarnings = round2(booking.TotalPrice * s.cfg.DriverShare)
	booking.PlatformFee = round2(booking.TotalPrice - booking.DriverEarnings)
	if err := s.store.UpdateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	driver.Availability = models.Busy
	if err := s.store.UpdateDriver(ctx, driver); err != nil {
		return nil, fmt.Errorf("update driver: %w", err)
	}
	observability.Assignments.Inc()
	return booking, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
