// Package weather is the weatherapi.com client used for risk scoring and the
// current conditions endpoint.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/alagamento-br/apiserver/types"
	"github.com/rs/zerolog"
)

const (
	operationForecast = "forecast"
	operationCurrent  = "current"

	defaultBaseURL = "https://api.weatherapi.com/v1"
	defaultTimeout = 5 * time.Second

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 4 << 10
)

// ProviderError reports any failure to obtain a usable answer from the
// provider. Message is safe to return to API clients.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client calls the weatherapi.com REST API. It never retries or caches.
type Client struct {
	apiKey     string
	lang       string
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewClient creates a weather client from config.
func NewClient(cfg config.WeatherConfig, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "pt"
	}
	return &Client{
		apiKey:     cfg.APIKey,
		lang:       lang,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger.With().Str("component", "weather").Logger(),
	}
}

// ForecastPrecipitation returns the total precipitation in millimeters
// forecast for the first forecast day of city.
func (c *Client) ForecastPrecipitation(ctx context.Context, city string) (float64, error) {
	params := url.Values{
		"q":    {city},
		"days": {"1"},
	}

	var resp forecastResponse
	if err := c.get(ctx, operationForecast, "forecast.json", params, &resp); err != nil {
		return 0, err
	}

	if resp.Forecast == nil || len(resp.Forecast.ForecastDay) == 0 ||
		resp.Forecast.ForecastDay[0].Day == nil || resp.Forecast.ForecastDay[0].Day.TotalPrecipMM == nil {
		return 0, c.fail(operationForecast, &ProviderError{Message: "weather provider response missing forecast precipitation"})
	}
	c.succeed(operationForecast)
	return *resp.Forecast.ForecastDay[0].Day.TotalPrecipMM, nil
}

// Current returns the current conditions of city.
func (c *Client) Current(ctx context.Context, city string) (types.WeatherSnapshot, error) {
	params := url.Values{"q": {city}}

	var resp currentResponse
	if err := c.get(ctx, operationCurrent, "current.json", params, &resp); err != nil {
		return types.WeatherSnapshot{}, err
	}

	cur := resp.Current
	if cur == nil || cur.TempC == nil || cur.Humidity == nil || cur.Condition == nil ||
		cur.Condition.Text == nil || cur.Condition.Icon == nil {
		return types.WeatherSnapshot{}, c.fail(operationCurrent, &ProviderError{Message: "weather provider response missing current conditions"})
	}
	c.succeed(operationCurrent)
	return types.WeatherSnapshot{
		Condition:    *cur.Condition.Text,
		IconURL:      absoluteIconURL(*cur.Condition.Icon),
		TemperatureC: *cur.TempC,
		HumidityPct:  *cur.Humidity,
	}, nil
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	params.Set("lang", c.lang)
	fullURL := c.baseURL + "/" + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return c.fail(operation, &ProviderError{Message: "weather provider request could not be built", Err: err})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observeDuration(operation, time.Since(start))
	if err != nil {
		// url.Error embeds the full URL, which carries the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return c.fail(operation, &ProviderError{Message: "weather provider unreachable", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.fail(operation, &ProviderError{
			Message: providerMessage(resp.StatusCode, body),
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(operation, &ProviderError{Message: "weather provider returned a malformed response", Err: err})
	}
	return nil
}

func (c *Client) fail(operation string, err *ProviderError) error {
	if c.metrics != nil {
		c.metrics.WeatherRequests.WithLabelValues(operation, "error").Inc()
	}
	c.logger.Warn().Str("operation", operation).Err(err).Msg("weather provider request failed")
	return err
}

func (c *Client) succeed(operation string) {
	if c.metrics != nil {
		c.metrics.WeatherRequests.WithLabelValues(operation, "success").Inc()
	}
}

func (c *Client) observeDuration(operation string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.WeatherRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// providerMessage prefers the provider's own error text.
func providerMessage(status int, body []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fmt.Sprintf("weather provider returned status %d", status)
}

// absoluteIconURL turns the provider's protocol-relative icon reference
// into an https URL.
func absoluteIconURL(icon string) string {
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

// weatherapi.com response types. Pointers distinguish missing fields from
// zero values.

type forecastResponse struct {
	Forecast *struct {
		ForecastDay []struct {
			Day *struct {
				TotalPrecipMM *float64 `json:"totalprecip_mm"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type currentResponse struct {
	Current *struct {
		TempC     *float64 `json:"temp_c"`
		Humidity  *int     `json:"humidity"`
		Condition *struct {
			Text *string `json:"text"`
			Icon *string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
