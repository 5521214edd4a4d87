package services

import (
	"context"
	"fmt"

	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/alagamento-br/apiserver/types"
)

// Risk thresholds. Precipitation comparisons are strict.
const (
	highPrecipitationMM   = 20
	highMinIncidents      = 3
	mediumPrecipitationMM = 5
	mediumMinIncidents    = 1
)

// WeatherProvider is the external weather collaborator.
type WeatherProvider interface {
	ForecastPrecipitation(ctx context.Context, city string) (float64, error)
	Current(ctx context.Context, city string) (types.WeatherSnapshot, error)
}

// IncidentCounter counts historical incidents of a city.
type IncidentCounter interface {
	CountByCity(ctx context.Context, city string) (int, error)
}

// ClassifyRisk maps forecast precipitation (mm) and the historical incident
// count to a risk level. Rules are evaluated in order; both signals must
// pass a rule.
func ClassifyRisk(precipitationMM float64, historicalCount int) types.RiskLevel {
	switch {
	case precipitationMM > highPrecipitationMM && historicalCount >= highMinIncidents:
		return types.RiskHigh
	case precipitationMM > mediumPrecipitationMM && historicalCount >= mediumMinIncidents:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// RiskService computes flood risk per city.
type RiskService struct {
	weather   WeatherProvider
	incidents IncidentCounter
	metrics   *observability.Metrics
}

func NewRiskService(weather WeatherProvider, incidents IncidentCounter, metrics *observability.Metrics) *RiskService {
	return &RiskService{weather: weather, incidents: incidents, metrics: metrics}
}

// Assess fetches the forecast and the incident count and classifies them.
// Provider failures are returned unchanged; there is no fallback value.
func (s *RiskService) Assess(ctx context.Context, city string) (types.RiskAssessment, error) {
	if city == "" {
		return types.RiskAssessment{}, invalid("city is required")
	}

	precipitation, err := s.weather.ForecastPrecipitation(ctx, city)
	if err != nil {
		return types.RiskAssessment{}, err
	}

	count, err := s.incidents.CountByCity(ctx, city)
	if err != nil {
		return types.RiskAssessment{}, fmt.Errorf("count incidents for %q: %w", city, err)
	}

	level := ClassifyRisk(precipitation, count)
	if s.metrics != nil {
		s.metrics.RiskAssessments.WithLabelValues(string(level)).Inc()
	}

	return types.RiskAssessment{
		City:                    city,
		ForecastPrecipitationMM: precipitation,
		HistoricalIncidentCount: count,
		RiskLevel:               level,
	}, nil
}

// CurrentWeather passes the provider's current conditions through.
func (s *RiskService) CurrentWeather(ctx context.Context, city string) (types.WeatherSnapshot, error) {
	if city == "" {
		return types.WeatherSnapshot{}, invalid("city is required")
	}
	return s.weather.Current(ctx, city)
}
