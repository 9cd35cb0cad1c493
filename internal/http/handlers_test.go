package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/marketplace-ops/internal/config"
	"github.com/example/marketplace-ops/internal/matching"
	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/payouts"
	"github.com/example/marketplace-ops/internal/pricing"
	"github.com/example/marketplace-ops/internal/sla"
	"github.com/example/marketplace-ops/internal/storage"
	"github.com/example/marketplace-ops/internal/weather"
)

type stubWeather struct{}

func (stubWeather) Current(ctx context.Context, lat, lng float64) (weather.Report, error) {
	return weather.Default(), nil
}

type noopGateway struct{}

func (noopGateway) SendEmail(ctx context.Context, to, subject, htmlBody string) error { return nil }
func (noopGateway) SendSMS(ctx context.Context, to, message string) error             { return nil }

func testConfig(adminToken string) config.ServerConfig {
	return config.ServerConfig{
		AdminToken: adminToken,
		Matching:   matching.DefaultConfig(),
		Pricing:    pricing.Config{MinPrice: 0},
		SLA:        sla.DefaultThresholds(),
		Payout:     payouts.DefaultConfig(),
	}
}

func testServer(t *testing.T, store storage.Store, adminToken string) *Server {
	t.Helper()
	return NewServer(testConfig(adminToken), store, noopGateway{}, stubWeather{}, nil, nil)
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func errBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("non-JSON error body: %s", rr.Body.String())
	}
	return out["error"]
}

func TestQuoteValidation(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "")

	cases := []struct {
		name string
		body any
	}{
		{"negative base price", map[string]any{"base_price": -5, "area": "downtown"}},
		{"missing area", map[string]any{"base_price": 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv, "POST", "/api/v1/pricing/quote", "", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if errBody(t, rr) == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestQuoteHappyPath(t *testing.T) {
	store := storage.NewMemoryStore()
	srv := testServer(t, store, "")

	rr := doJSON(t, srv, "POST", "/api/v1/pricing/quote", "",
		map[string]any{"base_price": 50, "area": "downtown", "service_type": "delivery"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var quote pricing.Quote
	if err := json.Unmarshal(rr.Body.Bytes(), &quote); err != nil {
		t.Fatal(err)
	}
	if quote.FinalPrice != 50 || quote.OriginalPrice != 50 {
		t.Fatalf("expected base price back with no rules, got %+v", quote)
	}
}

func TestAdminGate(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "secret")

	t.Run("missing token", func(t *testing.T) {
		rr := doJSON(t, srv, "POST", "/api/v1/admin/anomaly-scan", "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})
	t.Run("wrong token", func(t *testing.T) {
		rr := doJSON(t, srv, "POST", "/api/v1/admin/anomaly-scan", "wrong", nil)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
	t.Run("valid token", func(t *testing.T) {
		rr := doJSON(t, srv, "POST", "/api/v1/admin/anomaly-scan", "secret", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestMatchUnknownBooking(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "secret")

	rr := doJSON(t, srv, "POST", "/api/v1/bookings/nope/match", "secret", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMatchReturnsRankedCandidates(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutBooking(models.Booking{
		ID: "b1", Status: models.StatusPaid, PaymentStatus: models.PaymentPaid,
		AreaType: "downtown", ServiceType: "delivery", CreatedAt: time.Now(),
	})
	store.PutDriver(models.Driver{
		ID: "d1", Approved: true, DashboardAccess: true,
		Availability: models.Available, ServiceAreas: []string{"downtown"},
	})
	srv := testServer(t, store, "secret")

	rr := doJSON(t, srv, "POST", "/api/v1/bookings/b1/match", "secret", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		BookingID string               `json:"booking_id"`
		Matches   []matching.Candidate `json:"matches"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.BookingID != "b1" || len(out.Matches) != 1 || out.Matches[0].Driver.ID != "d1" {
		t.Fatalf("unexpected match response: %s", rr.Body.String())
	}
}

func TestAssignRequiresDriverID(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "secret")

	rr := doJSON(t, srv, "POST", "/api/v1/bookings/b1/assign", "secret", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPayoutRunEndpoint(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutDriver(models.Driver{
		ID: "d1", Approved: true, DashboardAccess: true, CurrentBalance: 250,
	})
	srv := testServer(t, store, "secret")

	rr := doJSON(t, srv, "POST", "/api/v1/admin/payouts/run", "secret", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res payouts.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.TotalAmount != 250 {
		t.Fatalf("unexpected batch result: %+v", res)
	}
}

func TestEmptyAdminTokenDisablesGate(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "")

	rr := doJSON(t, srv, "POST", "/api/v1/admin/anomaly-scan", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected open access with no configured token, got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, storage.NewMemoryStore(), "")

	rr := doJSON(t, srv, "GET", "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", rr.Code, rr.Body.String())
	}
}
