package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/alagamento-br/apiserver/internal/authz"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RiskHandler exposes risk assessment and current weather per city.
type RiskHandler struct {
	riskService *services.RiskService
	logger      zerolog.Logger
}

func NewRiskHandler(riskService *services.RiskService, logger zerolog.Logger) *RiskHandler {
	return &RiskHandler{riskService: riskService, logger: logger}
}

// RiskRouter registers /risk and /weather on the given router.
func RiskRouter(r chi.Router, riskService *services.RiskService, guard *Guard, logger zerolog.Logger) {
	handler := NewRiskHandler(riskService, logger)

	r.With(guard.Require(authz.AssessRisk)).Get("/risk/{city}", handler.Assess)
	r.With(guard.Require(authz.CurrentWeather)).Get("/weather/{city}", handler.Weather)
}

func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	city, err := cityParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assessment, err := h.riskService.Assess(r.Context(), city)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to assess risk")
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *RiskHandler) Weather(w http.ResponseWriter, r *http.Request) {
	city, err := cityParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.riskService.CurrentWeather(r.Context(), city)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch weather")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// cityParam returns the decoded {city} segment. chi routes on RawPath when
// the request has one, and then the parameter is still percent-encoded.
func cityParam(r *http.Request) (string, error) {
	city := chi.URLParam(r, "city")
	if r.URL.RawPath == "" {
		return city, nil
	}
	decoded, err := url.PathUnescape(city)
	if err != nil {
		return "", errors.New("invalid city")
	}
	return decoded, nil
}
