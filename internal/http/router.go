package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
)

// NewRouter registers every route on a new router. Id routes are registered
// before their {city} counterparts so that "id" segments are not read as a city.
func NewRouter(h *Handler, logger *zap.Logger, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// /weather routes stay on the root router: a method mismatch must answer 405.
	timeout := TimeoutMiddleware(requestTimeout)
	weather := func(path string, fn http.HandlerFunc, method string) {
		router.Handle("/weather"+path, timeout(fn)).Methods(method)
	}
	weather("/current/id/{city_id}", h.GetCurrentByID, http.MethodGet)
	weather("/current/{city}", h.GetCurrent, http.MethodGet)
	weather("/forecast/id/{city_id}", h.GetForecastByID, http.MethodGet)
	weather("/forecast/{city}/filter", h.GetFilteredForecast, http.MethodGet)
	weather("/forecast/{city}", h.GetForecast, http.MethodGet)
	weather("/cache/clear", h.ClearCache, http.MethodDelete)
	weather("/cache/clear-expired", h.ClearExpiredCache, http.MethodDelete)
	return router
}
