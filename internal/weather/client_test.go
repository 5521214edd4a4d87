package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) (*Client, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	c := NewClient(config.WeatherConfig{
		APIKey:  testKey,
		BaseURL: baseURL,
		Lang:    "pt",
		Timeout: 2 * time.Second,
	}, metrics, zerolog.Nop())
	return c, metrics
}

func jsonServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestForecastPrecipitation_Success(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"forecast":{"forecastday":[{"day":{"totalprecip_mm":23.4}}]}}`, func(r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		assert.Equal(t, testKey, r.URL.Query().Get("key"))
		assert.Equal(t, "São Paulo", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("days"))
		assert.Equal(t, "pt", r.URL.Query().Get("lang"))
	})

	c, metrics := testClient(srv.URL)
	mm, err := c.ForecastPrecipitation(context.Background(), "São Paulo")
	require.NoError(t, err)
	assert.Equal(t, 23.4, mm)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WeatherRequests.WithLabelValues("forecast", "success")))
}

func TestForecastPrecipitation_ZeroIsAValue(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"forecast":{"forecastday":[{"day":{"totalprecip_mm":0}}]}}`, nil)

	c, _ := testClient(srv.URL)
	mm, err := c.ForecastPrecipitation(context.Background(), "Natal")
	require.NoError(t, err)
	assert.Zero(t, mm)
}

func TestForecastPrecipitation_MissingFields(t *testing.T) {
	bodies := map[string]string{
		"empty object":     `{}`,
		"no forecastday":   `{"forecast":{"forecastday":[]}}`,
		"no day":           `{"forecast":{"forecastday":[{}]}}`,
		"no precipitation": `{"forecast":{"forecastday":[{"day":{"maxtemp_c":30}}]}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := jsonServer(t, http.StatusOK, body, nil)
			c, metrics := testClient(srv.URL)

			_, err := c.ForecastPrecipitation(context.Background(), "Recife")
			var providerErr *ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Contains(t, providerErr.Message, "missing")
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WeatherRequests.WithLabelValues("forecast", "error")))
		})
	}
}

func TestForecastPrecipitation_MistypedField(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"forecast":{"forecastday":[{"day":{"totalprecip_mm":"heavy"}}]}}`, nil)
	c, _ := testClient(srv.URL)

	_, err := c.ForecastPrecipitation(context.Background(), "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Contains(t, providerErr.Message, "malformed")
}

func TestForecastPrecipitation_APIErrorSurfacesProviderMessage(t *testing.T) {
	srv := jsonServer(t, http.StatusBadRequest, `{"error":{"code":1006,"message":"No matching location found."}}`, nil)
	c, _ := testClient(srv.URL)

	_, err := c.ForecastPrecipitation(context.Background(), "Atlantis")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "No matching location found.", providerErr.Message)
}

func TestForecastPrecipitation_APIErrorWithoutBody(t *testing.T) {
	srv := jsonServer(t, http.StatusServiceUnavailable, ``, nil)
	c, _ := testClient(srv.URL)

	_, err := c.ForecastPrecipitation(context.Background(), "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "weather provider returned status 503", providerErr.Message)
}

func TestForecastPrecipitation_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c, _ := testClient(baseURL)
	_, err := c.ForecastPrecipitation(context.Background(), "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "weather provider unreachable", providerErr.Message)
	assert.NotContains(t, err.Error(), testKey)
}

func TestForecastPrecipitation_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := testClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.ForecastPrecipitation(context.Background(), "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
}

func TestForecastPrecipitation_ContextCanceled(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{}`, nil)
	c, _ := testClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ForecastPrecipitation(ctx, "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCurrent_Success(t *testing.T) {
	body := `{"current":{"temp_c":27.5,"humidity":81,"condition":{"text":"Chuva moderada","icon":"//cdn.weatherapi.com/weather/64x64/day/302.png"}}}`
	srv := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		assert.Equal(t, "Recife", r.URL.Query().Get("q"))
		assert.Empty(t, r.URL.Query().Get("days"))
	})

	c, _ := testClient(srv.URL)
	snap, err := c.Current(context.Background(), "Recife")
	require.NoError(t, err)

	assert.Equal(t, "Chuva moderada", snap.Condition)
	assert.Equal(t, "https://cdn.weatherapi.com/weather/64x64/day/302.png", snap.IconURL)
	assert.Equal(t, 27.5, snap.TemperatureC)
	assert.Equal(t, 81, snap.HumidityPct)
}

func TestCurrent_MissingCondition(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"current":{"temp_c":27.5,"humidity":81}}`, nil)
	c, _ := testClient(srv.URL)

	_, err := c.Current(context.Background(), "Recife")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
}

func TestAbsoluteIconURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example/icon.png", absoluteIconURL("//cdn.example/icon.png"))
	assert.Equal(t, "https://cdn.example/icon.png", absoluteIconURL("https://cdn.example/icon.png"))
	assert.Equal(t, "", absoluteIconURL(""))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(config.WeatherConfig{APIKey: testKey}, nil, zerolog.Nop())
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, "pt", c.lang)
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ProviderError{Message: "weather provider unreachable", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.True(t, strings.HasPrefix(err.Error(), "weather provider unreachable"))
}
