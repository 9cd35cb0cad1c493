package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/marketplace-ops/internal/matching"
	"github.com/example/marketplace-ops/internal/payouts"
	"github.com/example/marketplace-ops/internal/pricing"
	"github.com/example/marketplace-ops/internal/sla"
)

// ServerConfig captures all tunable parameters for the decision engine.
// Values are loaded from environment variables with defaults that let the
// binary run locally against the in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	WeatherEndpoint string
	WeatherAPIKey   string

	NotifyEndpoint string
	NotifyAPIKey   string

	StripeAPIKey string

	AdminToken  string
	AdminEmails []string

	Matching matching.Config
	Pricing  pricing.Config
	SLA      sla.Thresholds
	Payout   payouts.Config

	ScanInterval   time.Duration
	PayoutInterval time.Duration
	JobLockTTL     time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		KafkaTopic:      "ops-decisions",
		Matching:        matching.DefaultConfig(),
		Pricing:         pricing.Config{},
		SLA:             sla.DefaultThresholds(),
		Payout:          payouts.DefaultConfig(),
		ScanInterval:    5 * time.Minute,
		PayoutInterval:  time.Hour,
		JobLockTTL:      10 * time.Minute,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.WeatherEndpoint = strings.TrimSpace(os.Getenv("WEATHER_ENDPOINT"))
	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	cfg.NotifyEndpoint = strings.TrimSpace(os.Getenv("NOTIFY_ENDPOINT"))
	cfg.NotifyAPIKey = os.Getenv("NOTIFY_API_KEY")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = splitAndTrim(v)
	}

	// scoring policy
	setFloatFromEnv(&cfg.Matching.MinViableScore, "MATCH_MIN_SCORE", &errs)
	setIntFromEnv(&cfg.Matching.TopN, "MATCH_TOP_N", &errs)
	setFloatFromEnv(&cfg.Matching.TierExcellent, "MATCH_TIER_EXCELLENT", &errs)
	setFloatFromEnv(&cfg.Matching.TierGood, "MATCH_TIER_GOOD", &errs)
	setFloatFromEnv(&cfg.Matching.DriverShare, "MATCH_DRIVER_SHARE", &errs)
	if v := os.Getenv("MATCH_WEIGHTS"); v != "" {
		if err := json.Unmarshal([]byte(v), &cfg.Matching.Weights); err != nil {
			errs = append(errs, fmt.Errorf("invalid MATCH_WEIGHTS: %w", err))
		}
	}

	// pricing policy
	setFloatFromEnv(&cfg.Pricing.MinPrice, "PRICING_MIN_PRICE", &errs)
	setFloatFromEnv(&cfg.Pricing.DemandRadiusKm, "PRICING_DEMAND_RADIUS_KM", &errs)

	// SLA policy
	setDurationFromEnv(&cfg.SLA.StuckAssigned, "SLA_STUCK_ASSIGNED", &errs)
	setDurationFromEnv(&cfg.SLA.StuckProgress, "SLA_STUCK_PROGRESS", &errs)
	setDurationFromEnv(&cfg.SLA.TrackingStale, "SLA_TRACKING_STALE", &errs)
	setDurationFromEnv(&cfg.SLA.PaymentPending, "SLA_PAYMENT_PENDING", &errs)
	setDurationFromEnv(&cfg.SLA.Unassigned, "SLA_UNASSIGNED", &errs)
	setDurationFromEnv(&cfg.SLA.DuplicateWindow, "SLA_DUPLICATE_WINDOW", &errs)
	setDurationFromEnv(&cfg.SLA.AbandonedPending, "SLA_ABANDONED", &errs)
	setDurationFromEnv(&cfg.SLA.UnpaidPayment, "SLA_UNPAID", &errs)
	setDurationFromEnv(&cfg.SLA.ScanWindow, "SLA_SCAN_WINDOW", &errs)
	setIntFromEnv(&cfg.SLA.ScanLimit, "SLA_SCAN_LIMIT", &errs)

	// payout policy
	setFloatFromEnv(&cfg.Payout.MinBalance, "PAYOUT_MIN_BALANCE", &errs)
	setStringFromEnv(&cfg.Payout.PaymentMethod, "PAYOUT_METHOD")
	setStringFromEnv(&cfg.Payout.Currency, "PAYOUT_CURRENCY")

	setDurationFromEnv(&cfg.ScanInterval, "SCAN_INTERVAL", &errs)
	setDurationFromEnv(&cfg.PayoutInterval, "PAYOUT_INTERVAL", &errs)
	setDurationFromEnv(&cfg.JobLockTTL, "JOB_LOCK_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.Matching.TopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_TOP_N must be > 0"))
	}
	if cfg.Payout.MinBalance <= 0 {
		errs = append(errs, fmt.Errorf("PAYOUT_MIN_BALANCE must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
