package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/marketplace-ops/internal/config"
	"github.com/example/marketplace-ops/internal/joblock"
	"github.com/example/marketplace-ops/internal/logging"
	"github.com/example/marketplace-ops/internal/notify"
	"github.com/example/marketplace-ops/internal/payouts"
	"github.com/example/marketplace-ops/internal/sla"
	"github.com/example/marketplace-ops/internal/storage"
)

var (
	scanRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitor_scan_runs_total",
		Help: "Total SLA scan runs attempted",
	})
	scanSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitor_scan_skipped_total",
		Help: "Scan runs skipped because the job lock was held",
	})
	payoutRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitor_payout_runs_total",
		Help: "Total payout batch runs attempted",
	})
	jobErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitor_job_errors_total",
		Help: "Total job run failures",
	})
)

func init() {
	prometheus.MustRegister(scanRuns, scanSkipped, payoutRuns, jobErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("ops-monitor", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var gateway notify.Gateway
	if cfg.NotifyEndpoint != "" {
		gateway = notify.NewHTTPGateway(cfg.NotifyEndpoint, cfg.NotifyAPIKey)
	} else {
		gateway = &notify.LogGateway{Logger: logger}
	}

	var locker joblock.Locker
	if cfg.RedisAddr != "" {
		locker = joblock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		logger.Warn("REDIS_ADDR not set, job lock is process-local only")
		locker = joblock.NewLocalLocker()
	}

	var disburser payouts.Disburser
	if cfg.StripeAPIKey != "" {
		disburser = payouts.NewStripeClient(cfg.StripeAPIKey, cfg.Payout.Currency)
	}

	monitor := sla.NewMonitor(store, gateway, cfg.AdminEmails, cfg.SLA, logger)
	batch := payouts.NewProcessor(store, gateway, disburser, cfg.Payout, logger)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("monitor running",
		"scan_interval", cfg.ScanInterval.String(),
		"payout_interval", cfg.PayoutInterval.String())

	scanTicker := time.NewTicker(cfg.ScanInterval)
	payoutTicker := time.NewTicker(cfg.PayoutInterval)
	defer scanTicker.Stop()
	defer payoutTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down monitor")
			return
		case <-scanTicker.C:
			scanRuns.Inc()
			runLocked(ctx, locker, "sla-scan", cfg.JobLockTTL, logger, func(jobCtx context.Context) error {
				report, err := monitor.Scan(jobCtx)
				if err != nil {
					return err
				}
				logger.Info("sla scan complete",
					"scanned", report.Scanned,
					"flags", len(report.Flags),
					"partial", report.Partial,
					"notify_errors", len(report.Errors))
				return nil
			})
		case <-payoutTicker.C:
			payoutRuns.Inc()
			runLocked(ctx, locker, "payout-batch", cfg.JobLockTTL, logger, func(jobCtx context.Context) error {
				result, err := batch.Run(jobCtx)
				if err != nil {
					return err
				}
				logger.Info("payout batch complete",
					"processed", result.Processed,
					"total_amount", result.TotalAmount,
					"errors", len(result.Errors))
				return nil
			})
		}
	}
}

// runLocked executes one job run under the single-flight lock, bounded by
// the lock TTL so a slow scan cannot outlive its lease.
func runLocked(ctx context.Context, locker joblock.Locker, job string, ttl time.Duration,
	logger *slog.Logger, fn func(context.Context) error) {
	ok, err := locker.Acquire(ctx, job, ttl)
	if err != nil {
		jobErrors.Inc()
		logger.Error("job lock error", "job", job, "error", err)
		return
	}
	if !ok {
		scanSkipped.Inc()
		logger.Warn("job already running elsewhere, skipping", "job", job)
		return
	}
	defer func() {
		if err := locker.Release(context.Background(), job); err != nil {
			logger.Warn("job lock release failed", "job", job, "error", err)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	if err := fn(jobCtx); err != nil {
		jobErrors.Inc()
		logger.Error("job run failed", "job", job, "error", err)
	}
}
