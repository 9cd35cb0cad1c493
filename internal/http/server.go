package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/marketplace-ops/internal/config"
	"github.com/example/marketplace-ops/internal/feed"
	"github.com/example/marketplace-ops/internal/ingest"
	"github.com/example/marketplace-ops/internal/matching"
	"github.com/example/marketplace-ops/internal/notify"
	"github.com/example/marketplace-ops/internal/payouts"
	"github.com/example/marketplace-ops/internal/pricing"
	"github.com/example/marketplace-ops/internal/sla"
	"github.com/example/marketplace-ops/internal/storage"
	"github.com/example/marketplace-ops/internal/weather"
)

type Server struct {
	Store   storage.Store
	Scorer  *matching.Scorer
	Pricing *pricing.Engine
	Monitor *sla.Monitor
	Batch   *payouts.Processor
	Feed    *feed.Registry
	Kafka   *ingest.KafkaProducer

	adminToken string
	logger     *slog.Logger
	mux        *mux.Router
}

// NewServer wires the decision engine from config. The store, gateway and
// optional side channels are injected so tests can run against fakes.
func NewServer(cfg config.ServerConfig, store storage.Store, gateway notify.Gateway,
	wc weather.Client, kafka *ingest.KafkaProducer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var disburser payouts.Disburser
	if cfg.StripeAPIKey != "" {
		disburser = payouts.NewStripeClient(cfg.StripeAPIKey, cfg.Payout.Currency)
	}
	s := &Server{
		Store:      store,
		Scorer:     matching.NewScorer(store, cfg.Matching),
		Pricing:    pricing.NewEngine(store, wc, cfg.Pricing, logger),
		Monitor:    sla.NewMonitor(store, gateway, cfg.AdminEmails, cfg.SLA, logger),
		Batch:      payouts.NewProcessor(store, gateway, disburser, cfg.Payout, logger),
		Feed:       feed.NewRegistry(),
		Kafka:      kafka,
		adminToken: cfg.AdminToken,
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/pricing/quote", s.handleQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/match", s.admin(s.handleMatch)).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/assign", s.admin(s.handleAssign)).Methods("POST")
	s.mux.HandleFunc("/api/v1/admin/anomaly-scan", s.admin(s.handleAnomalyScan)).Methods("POST")
	s.mux.HandleFunc("/api/v1/admin/payouts/run", s.admin(s.handlePayoutRun)).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/ops", s.admin(s.handleOpsFeed))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{}

// handleOpsFeed attaches an admin dashboard to the live decision feed.
func (s *Server) handleOpsFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.Feed.Add(conn)
}

// publish fans a decision event out to kafka and the live feed, best-effort.
func (s *Server) publish(eventType, key string, payload any) {
	if s.Kafka != nil {
		if err := s.Kafka.PublishDecision(eventType, key, payload); err != nil {
			s.logger.Warn("kafka publish failed", "event", eventType, "error", err)
		}
	}
	if s.Feed != nil {
		s.Feed.Broadcast(eventType, payload)
	}
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
