package main

import (
	"net/http"

	"github.com/Simplici0/levelworks/internal/pricing"
)

type calculateResponse struct {
	Input       pricing.JobInput `json:"input"`
	Result      pricing.Result   `json:"result"`
	Description string           `json:"description"`
}

// handleCalculate prices a job against the stored rates. Omitted price bounds
// fall back to the stored defaults.
func (s *server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var in pricing.JobInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rates, err := s.rates.LoadRates(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	in = pricing.WithDefaultBounds(in, rates)
	result, err := pricing.Calculate(in, rates)
	s.metrics.ObserveCalculation(pricing.Outcome(err))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, calculateResponse{
		Input:       in,
		Result:      result,
		Description: pricing.Describe(in),
	})
}

func (s *server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.rates.LoadRates(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *server) handlePutRates(w http.ResponseWriter, r *http.Request) {
	var rates pricing.Rates
	if err := decodeJSON(w, r, &rates); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := s.rates.SaveRates(r.Context(), rates); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log.Info("rates updated")
	writeJSON(w, http.StatusOK, rates)
}
