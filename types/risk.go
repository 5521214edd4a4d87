package types

// RiskLevel is the discrete flood risk classification of a city.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskAssessment is computed per query and never persisted.
type RiskAssessment struct {
	// City is echoed exactly as requested.
	City string `json:"city"`

	// ForecastPrecipitationMM is the total precipitation forecast for the
	// day, in millimeters.
	ForecastPrecipitationMM float64 `json:"forecast_precipitation_mm"`

	// HistoricalIncidentCount is the number of stored incidents whose city
	// matches City exactly.
	HistoricalIncidentCount int `json:"historical_incident_count"`

	// RiskLevel is derived from the two signals above.
	RiskLevel RiskLevel `json:"risk_level"`
}

// WeatherSnapshot mirrors the provider's current conditions for a city.
type WeatherSnapshot struct {
	Condition    string  `json:"condition"`
	IconURL      string  `json:"icon_url"`
	TemperatureC float64 `json:"temp_c"`
	HumidityPct  int     `json:"humidity"`
}
