package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-cache-proxy/internal/models"
	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
	"github.com/kjstillabower/weather-cache-proxy/internal/validation"
)

// Forecast item bounds accepted by the OpenWeather forecast endpoint (3-hour steps, 5 days).
const (
	MinForecastCount = 1
	MaxForecastCount = 40
)

const (
	endpointWeather  = "weather"
	endpointForecast = "forecast"

	maxBodyBytes = 4 << 20
)

// WeatherClient fetches documents from the weather provider. Each call makes
// exactly one upstream request; failures are *Error values and are never retried.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, q models.Query) (models.CurrentWeather, error)
	FetchForecast(ctx context.Context, q models.Query, count int) (models.Forecast, error)
}

type OpenWeatherClient struct {
	apiKey  string
	baseURL *url.URL
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client for the OpenWeather 2.5 API rooted at baseURL
// (e.g. https://api.openweathermap.org/data/2.5). An empty apiKey is accepted so the
// service can start unconfigured; every fetch then fails with ErrInvalidAPIKey.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: scheme and host required", baseURL)
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: u,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every upstream call through cb. While cb is open,
// fetches fail fast with ErrUpstreamUnavailable.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// APIKeyConfigured reports whether an API key was supplied.
func (c *OpenWeatherClient) APIKeyConfigured() bool {
	return c.apiKey != ""
}

// ClampCount clamps a forecast item count into [MinForecastCount, MaxForecastCount].
func ClampCount(n int) int {
	if n < MinForecastCount {
		return MinForecastCount
	}
	if n > MaxForecastCount {
		return MaxForecastCount
	}
	return n
}

// FetchCurrent calls the current-weather endpoint.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, q models.Query) (models.CurrentWeather, error) {
	body, err := c.get(ctx, endpointWeather, queryParams(q), q)
	if err != nil {
		return models.CurrentWeather{}, err
	}
	var doc models.CurrentWeather
	if err := decode(body, &doc); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)).Inc()
		return models.CurrentWeather{}, err
	}
	return doc, nil
}

// FetchForecast calls the forecast endpoint for count items, clamped into [1, 40].
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, q models.Query, count int) (models.Forecast, error) {
	params := queryParams(q)
	params.Set("cnt", strconv.Itoa(ClampCount(count)))
	body, err := c.get(ctx, endpointForecast, params, q)
	if err != nil {
		return models.Forecast{}, err
	}
	var doc models.Forecast
	if err := decode(body, &doc); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)).Inc()
		return models.Forecast{}, err
	}
	return doc, nil
}

func queryParams(q models.Query) url.Values {
	params := url.Values{}
	if q.IsID() {
		params.Set("id", strconv.FormatInt(q.CityID, 10))
	} else {
		params.Set("q", q.City)
	}
	return params
}

// decode parses body into doc and checks it has the expected document shape.
func decode(body []byte, doc any) error {
	if err := json.Unmarshal(body, doc); err != nil {
		return newError(KindInvalidResponse, err, "failed to parse JSON response")
	}
	if err := validation.Struct(doc); err != nil {
		return newError(KindInvalidResponse, err, "unexpected response shape")
	}
	return nil
}

func (c *OpenWeatherClient) get(ctx context.Context, endpoint string, params url.Values, q models.Query) ([]byte, error) {
	if c.apiKey == "" {
		return nil, newError(KindInvalidAPIKey, nil, "OpenWeather API key is not configured")
	}
	var (
		body []byte
		err  error
	)
	if c.breaker == nil {
		body, err = c.callAPI(ctx, endpoint, params, q)
	} else {
		var res interface{}
		res, err = c.breaker.Execute(func() (interface{}, error) {
			return c.callAPI(ctx, endpoint, params, q)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = newError(KindUpstreamUnavailable, err, "weather provider temporarily disabled")
		} else if err == nil {
			body = res.([]byte)
		}
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return nil, err
	}
	return body, nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint string, params url.Values, q models.Query) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, newError(KindCityNotFound, nil, "City not found: %s", q)
	case http.StatusUnauthorized:
		return nil, newError(KindInvalidAPIKey, nil, "Invalid API key")
	default:
		return nil, newError(KindInvalidResponse, nil, "API returned status code %d: %s", resp.StatusCode, snippet(body))
	}
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = u.Path + "/" + endpoint
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// transportError classifies a failed round trip as a timeout or an unreachable upstream.
func (c *OpenWeatherClient) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindUpstreamTimeout, err, "request timeout after %s", c.timeout)
	}
	return newError(KindUpstreamUnavailable, err, "network error occurred")
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
