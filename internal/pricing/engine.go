package pricing

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/example/marketplace-ops/internal/geo"
	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/observability"
	"github.com/example/marketplace-ops/internal/weather"
)

// Store is the slice of the entity store the engine needs.
type Store interface {
	ListActivePricingRules(ctx context.Context) ([]models.PricingRule, error)
	CountActiveBookings(ctx context.Context) (int, error)
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
}

type Config struct {
	// MinPrice is the floor applied after all adjustments.
	MinPrice float64
	// DemandRadiusKm > 0 restricts the demand count to active bookings whose
	// pickup lies within the radius of the quote's pickup. Zero counts globally.
	DemandRadiusKm float64
}

type QuoteRequest struct {
	BasePrice   float64       `json:"base_price"`
	Area        string        `json:"area"`
	ServiceType string        `json:"service_type"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"`
	Pickup      *models.Coord `json:"pickup,omitempty"`
}

// Adjustment is one audit-trail entry; order matters because percentage
// adjustments compound on the running price.
type Adjustment struct {
	RuleName string                `json:"rule_name"`
	RuleType models.RuleType       `json:"rule_type"`
	Kind     models.AdjustmentType `json:"kind"`
	Amount   float64               `json:"amount"`
	Reason   string                `json:"reason"`
}

// Snapshot records the context the decision was made against, for logging.
type Snapshot struct {
	Hour        int     `json:"hour"`
	Weekday     string  `json:"weekday"`
	Weather     string  `json:"weather"`
	TempC       float64 `json:"temp_c"`
	DemandCount int     `json:"demand_count"`
	Area        string  `json:"area"`

	day time.Weekday
}

// Quote is the full pricing decision. A populated Error with FinalPrice 0
// means the computation failed; it is never a literal free price.
type Quote struct {
	OriginalPrice float64      `json:"original_price"`
	FinalPrice    float64      `json:"final_price"`
	Adjustments   []Adjustment `json:"adjustments"`
	Context       Snapshot     `json:"context"`
	Error         string       `json:"error,omitempty"`
}

type Engine struct {
	store   Store
	weather weather.Client
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(store Store, wc weather.Client, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, weather: wc, cfg: cfg, logger: logger, now: time.Now}
}

// Quote runs every active rule in priority order against the derived context
// and returns the adjusted price with a complete audit trail. Internal
// failures come back as a zero-price quote with Error set.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) Quote {
	q := Quote{OriginalPrice: req.BasePrice, Adjustments: []Adjustment{}}

	rules, err := e.store.ListActivePricingRules(ctx)
	if err != nil {
		q.Error = "pricing rules unavailable: " + err.Error()
		return q
	}

	snap, err := e.buildContext(ctx, req)
	if err != nil {
		q.Error = "pricing context unavailable: " + err.Error()
		return q
	}
	q.Context = snap

	running := req.BasePrice
	for _, r := range rules {
		applies, reason := e.applies(r, snap)
		if !applies {
			continue
		}
		var amount float64
		switch r.AdjustmentType {
		case models.AdjustPercentage:
			amount = running * r.AdjustmentValue / 100
		default:
			amount = r.AdjustmentValue
		}
		running += amount
		q.Adjustments = append(q.Adjustments, Adjustment{
			RuleName: r.Name,
			RuleType: r.RuleType,
			Kind:     r.AdjustmentType,
			Amount:   amount,
			Reason:   reason,
		})
		observability.RuleApplications.WithLabelValues(string(r.RuleType)).Inc()
	}

	final := roundHalfUp(running)
	if final < e.cfg.MinPrice {
		final = e.cfg.MinPrice
	}
	if final < 0 {
		final = 0
	}
	q.FinalPrice = final
	observability.PriceQuotes.Inc()
	return q
}

// applies evaluates the rule's type-specific predicate. This is the single
// dispatch site for the tagged conditions payloads.
func (e *Engine) applies(r models.PricingRule, snap Snapshot) (bool, string) {
	switch r.RuleType {
	case models.RuleTimeBased:
		if r.Time == nil {
			return false, ""
		}
		for _, rng := range r.Time.Ranges {
			if rng.Contains(snap.Hour, snap.day) {
				return true, "scheduled inside surcharge hours"
			}
		}
	case models.RuleWeatherBased:
		if r.Weather == nil {
			return false, ""
		}
		for _, c := range r.Weather.Conditions {
			if c == snap.Weather {
				return true, "current weather: " + snap.Weather
			}
		}
	case models.RuleDemandBased:
		if r.Demand == nil {
			return false, ""
		}
		if snap.DemandCount >= r.Demand.Threshold {
			return true, "high demand"
		}
	case models.RuleAreaBased:
		if r.Area == nil {
			return false, ""
		}
		for _, a := range r.Area.Areas {
			if a == snap.Area {
				return true, "area surcharge: " + snap.Area
			}
		}
	}
	return false, ""
}

func (e *Engine) buildContext(ctx context.Context, req QuoteRequest) (Snapshot, error) {
	at := e.now()
	if req.ScheduledAt != nil {
		at = *req.ScheduledAt
	}

	report := weather.Default()
	if e.weather != nil && req.Pickup != nil {
		if r, err := e.weather.Current(ctx, req.Pickup.Lat, req.Pickup.Lng); err == nil {
			report = r
		} else {
			e.logger.Warn("weather provider failed, using default", "error", err)
		}
	}

	demand, err := e.demandCount(ctx, req.Pickup)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Hour:        at.Hour(),
		Weekday:     at.Weekday().String(),
		Weather:     report.Condition,
		TempC:       report.TempC,
		DemandCount: demand,
		Area:        req.Area,
		day:         at.Weekday(),
	}, nil
}

func (e *Engine) demandCount(ctx context.Context, pickup *models.Coord) (int, error) {
	if e.cfg.DemandRadiusKm <= 0 || pickup == nil {
		return e.store.CountActiveBookings(ctx)
	}
	active, err := e.store.ListActiveBookings(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range active {
		if b.Pickup != nil && geo.WithinKm(*pickup, *b.Pickup, e.cfg.DemandRadiusKm) {
			n++
		}
	}
	return n, nil
}

// roundHalfUp rounds to the nearest whole currency unit, halves up.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
