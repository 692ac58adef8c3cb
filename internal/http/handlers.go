package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/filter"
	"github.com/kjstillabower/weather-cache-proxy/internal/lifecycle"
	"github.com/kjstillabower/weather-cache-proxy/internal/models"
	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
	"github.com/kjstillabower/weather-cache-proxy/internal/service"
	"github.com/kjstillabower/weather-cache-proxy/internal/validation"
)

const (
	serviceName    = "weather-cache-proxy"
	serviceVersion = "1.0.0"
)

// HealthConfig holds what the health handler reports besides liveness.
type HealthConfig struct {
	APIConfigured bool
	// CachePing, when set, is called to check the cache backing storage.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weatherService *service.WeatherService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		healthConfig:   healthConfig,
		logger:         logger,
	}
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Weather cache proxy for the OpenWeather API",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"current_weather":       "/weather/current/{city}",
			"current_weather_by_id": "/weather/current/id/{city_id}",
			"forecast":              "/weather/forecast/{city}",
			"forecast_by_id":        "/weather/forecast/id/{city_id}",
			"filtered_forecast":     "/weather/forecast/{city}/filter",
			"clear_cache":           "/weather/cache/clear",
			"clear_expired_cache":   "/weather/cache/clear-expired",
			"health":                "/health",
			"metrics":               "/metrics",
		},
	})
}

// GetCurrent handles GET /weather/current/{city}.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	city, ok := cityVar(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.Current(r.Context(), models.ByName(city))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCurrentByID handles GET /weather/current/id/{city_id}.
func (h *Handler) GetCurrentByID(w http.ResponseWriter, r *http.Request) {
	id, ok := cityIDVar(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.Current(r.Context(), models.ByID(id))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /weather/forecast/{city}?cnt=N.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, ok := cityVar(w, r)
	if !ok {
		return
	}
	params, err := validation.ParseForecastParams(r.URL.Query())
	if err != nil {
		writeParamError(w, r, err)
		return
	}
	result, err := h.weatherService.Forecast(r.Context(), models.ByName(city), params.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetForecastByID handles GET /weather/forecast/id/{city_id}?cnt=N.
func (h *Handler) GetForecastByID(w http.ResponseWriter, r *http.Request) {
	id, ok := cityIDVar(w, r)
	if !ok {
		return
	}
	params, err := validation.ParseForecastParams(r.URL.Query())
	if err != nil {
		writeParamError(w, r, err)
		return
	}
	result, err := h.weatherService.Forecast(r.Context(), models.ByID(id), params.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFilteredForecast handles GET /weather/forecast/{city}/filter.
func (h *Handler) GetFilteredForecast(w http.ResponseWriter, r *http.Request) {
	city, ok := cityVar(w, r)
	if !ok {
		return
	}
	params, err := validation.ParseFilterParams(r.URL.Query())
	if err != nil {
		writeParamError(w, r, err)
		return
	}
	criteria := filter.Criteria{
		MinTemp:          params.MinTemp,
		MaxTemp:          params.MaxTemp,
		MinHumidity:      params.MinHumidity,
		MaxHumidity:      params.MaxHumidity,
		WeatherCondition: params.WeatherCondition,
	}
	result, err := h.weatherService.FilteredForecast(r.Context(), city, params.Count, criteria)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearCache handles DELETE /weather/cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.weatherService.ClearCache(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{
		Message: "Successfully cleared " + plural(n, "cache file"),
		Count:   n,
	})
}

// ClearExpiredCache handles DELETE /weather/cache/clear-expired.
func (h *Handler) ClearExpiredCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.weatherService.ClearExpired(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{
		Message: "Successfully cleared " + plural(n, "expired cache file"),
		Count:   n,
	})
}

type clearResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	checks := map[string]string{}
	if h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(r.Context()); err != nil {
			checks["cache"] = "unhealthy"
			status, statusCode = "degraded", http.StatusServiceUnavailable
			observability.LoggerFromContext(r.Context()).Warn("cache health check failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
	}
	if lifecycle.IsShuttingDown() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	writeJSON(w, statusCode, map[string]interface{}{
		"status":         status,
		"service":        serviceName,
		"version":        serviceVersion,
		"api_configured": h.healthConfig.APIConfigured,
		"cache_enabled":  true,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func cityVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", "", err.Error())
		return "", false
	}
	return city, true
}

func cityIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := validation.ParseCityID(mux.Vars(r)["city_id"])
	if err != nil {
		writeParamError(w, r, err)
		return 0, false
	}
	return id, true
}

func plural(n int, noun string) string {
	s := noun + "s"
	if n == 1 {
		s = noun
	}
	return strconv.Itoa(n) + " " + s
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// writeError writes the standard error body. requestId is the correlation ID of the request.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Kind:      kind,
		Message:   message,
		RequestID: observability.CorrelationID(r.Context()),
	}})
}

func writeParamError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "", err.Error())
}

// writeServiceError maps a service error to its status. Upstream failures carry
// their kind, and a request canceled or timed out outside the upstream call is
// reported as a timeout. Anything else, cache failures included, is an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	kind, ok := client.KindOf(err)
	if !ok && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Debug("request ended before completion", zap.Error(err))
		kind, ok = client.KindUpstreamTimeout, true
		err = client.ErrUpstreamTimeout
	}
	if !ok {
		logger.Error("request failed", zap.Error(err), zap.Bool("cache_failure", errors.Is(err, service.ErrCache)))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "", "Internal server error")
		return
	}
	logger.Debug("upstream error", zap.Error(err), zap.String("kind", kind.String()))
	writeError(w, r, statusForKind(kind), kind.Code(), kind.String(), upstreamMessage(err))
}

// statusForKind maps every upstream failure kind to its HTTP status.
func statusForKind(k client.Kind) int {
	switch k {
	case client.KindInvalidAPIKey:
		return http.StatusUnauthorized
	case client.KindCityNotFound:
		return http.StatusNotFound
	case client.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case client.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case client.KindInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// upstreamMessage returns the client-facing message of the first *client.Error,
// without the wrapped transport cause.
func upstreamMessage(err error) string {
	var ce *client.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	kind, _ := client.KindOf(err)
	return kind.String()
}
