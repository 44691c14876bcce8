package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/forecasting"
	"github.com/patrickwarner/nest/internal/models"
)

func (s *Server) forecastsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.Forecasts == nil {
		s.fail(w, r, apperr.Upstream("predictions are not available", nil))
		return false
	}
	return true
}

func (s *Server) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if !s.forecastsEnabled(w, r) {
		return
	}
	p, err := pageFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := forecasting.ListQuery{
		Status: models.PredictionStatus(r.URL.Query().Get("status")),
		Type:   models.Category(r.URL.Query().Get("type")),
	}
	if q.MinProbability, err = queryFloat(r, "minProbability"); err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.Forecasts.List(r.Context(), q, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page.Predictions, Pagination: &page.Pagination})
}

type predictionStatusRequest struct {
	Status models.PredictionStatus `json:"status"`
}

func (s *Server) UpdatePredictionStatus(w http.ResponseWriter, r *http.Request) {
	if !s.forecastsEnabled(w, r) {
		return
	}
	var req predictionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.Forecasts.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, p)
}

func (s *Server) GeneratePredictions(w http.ResponseWriter, r *http.Request) {
	if !s.forecastsEnabled(w, r) {
		return
	}
	preds, err := s.Forecasts.Generate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Generated %d new predictions", len(preds)),
		Data:    preds,
	})
}
