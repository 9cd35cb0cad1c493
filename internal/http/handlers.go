package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/marketplace-ops/internal/pricing"
	"github.com/example/marketplace-ops/internal/storage"
)

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req pricing.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BasePrice < 0 {
		writeError(w, http.StatusBadRequest, "base_price must be >= 0")
		return
	}
	if req.Area == "" {
		writeError(w, http.StatusBadRequest, "area is required")
		return
	}

	quote := s.Pricing.Quote(r.Context(), req)
	if quote.Error != "" {
		// zero price plus error is a failure, never a free booking
		writeError(w, http.StatusInternalServerError, quote.Error)
		return
	}
	s.publish("price_quoted", newID(), quote)
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	matches, err := s.Scorer.Match(r.Context(), bookingID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"matches":    matches,
	})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}

	booking, err := s.Scorer.Assign(r.Context(), bookingID, body.DriverID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish("driver_assigned", bookingID, booking)
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleAnomalyScan(w http.ResponseWriter, r *http.Request) {
	report, err := s.Monitor.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, f := range report.Flags {
		s.publish("anomaly_flagged", f.BookingID, f)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePayoutRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.Batch.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, p := range result.Payouts {
		s.publish("payout_processed", p.DriverID, p)
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps entity-store failures onto the API taxonomy: missing
// references are 404, anything else is an internal failure.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
