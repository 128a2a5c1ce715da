package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/valer-ix/mardatbot/internal/clients/fmp"
	"github.com/valer-ix/mardatbot/internal/services"
)

// errorResponse is the machine-readable error body. Code lets callers tell a
// lookup miss ("not_found") apart from an upstream failure ("upstream_error").
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, msg string) {
	s.respondJSON(w, status, errorResponse{Code: code, Error: msg})
}

// upstreamError maps a failed remote call onto a 502, after logging it.
func (s *Server) upstreamError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Upstream request failed")
	s.respondError(w, http.StatusBadGateway, "upstream_error", "market data upstream unavailable")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "bad_request", "query parameter q is required")
		return
	}

	result, err := s.marketData.Lookup(q)
	if errors.Is(err, services.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "not_found", "instrument not found")
		return
	}
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.marketData.LatestQuote(chi.URLParam(r, "id"))
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, quote)
}

func (s *Server) handleOHLC(w http.ResponseWriter, r *http.Request) {
	rangeLabel := r.URL.Query().Get("range")
	if rangeLabel == "" {
		rangeLabel = "1 day"
	}

	bars, err := s.marketData.OHLCSeries(chi.URLParam(r, "id"), rangeLabel)
	if errors.Is(err, services.ErrUnknownRange) {
		s.respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, bars)
}

func (s *Server) handleCrossratePrice(w http.ResponseWriter, r *http.Request) {
	rate, err := s.marketData.CrossratePrice(chi.URLParam(r, "base"), chi.URLParam(r, "counter"))
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"base":    chi.URLParam(r, "base"),
		"counter": chi.URLParam(r, "counter"),
		"rate":    rate,
	})
}

func (s *Server) handleCryptoList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.marketData.CryptoList())
}

func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	sheet, err := fmp.ParseSheetKind(chi.URLParam(r, "sheet"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	record, err := s.marketData.Fundamentals(chi.URLParam(r, "ticker"), sheet)
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleRatios(w http.ResponseWriter, r *http.Request) {
	lookup, err := s.marketData.Lookup(chi.URLParam(r, "ticker"))
	if errors.Is(err, services.ErrNotFound) || (err == nil && lookup.Kind != services.LookupStock) {
		s.respondError(w, http.StatusNotFound, "not_found", "stock not found")
		return
	}
	if err != nil {
		s.upstreamError(w, err)
		return
	}

	ratios, err := s.marketData.StockRatios(lookup.Instrument)
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ratios)
}
