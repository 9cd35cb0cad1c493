package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/marketplace-ops/internal/config"
	httpapi "github.com/example/marketplace-ops/internal/http"
	"github.com/example/marketplace-ops/internal/ingest"
	"github.com/example/marketplace-ops/internal/logging"
	"github.com/example/marketplace-ops/internal/notify"
	"github.com/example/marketplace-ops/internal/storage"
	"github.com/example/marketplace-ops/internal/weather"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("ops-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
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

	var wc weather.Client
	if cfg.WeatherEndpoint != "" {
		wc = weather.NewHTTPClient(cfg.WeatherEndpoint, cfg.WeatherAPIKey)
	}

	var kafka *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kafka = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
	}

	srv := httpapi.NewServer(cfg, store, gateway, wc, kafka, logger)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("decision engine listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shut down cleanly")
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_schema.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_schema.sql")
}
