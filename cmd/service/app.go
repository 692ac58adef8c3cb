package main

import (
	"context"
	"fmt"
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/cache"
	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/config"
	httphandler "github.com/kjstillabower/weather-cache-proxy/internal/http"
	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
	"github.com/kjstillabower/weather-cache-proxy/internal/service"
)

// app is the wired service: the HTTP handler plus the parts main starts and stops.
type app struct {
	handler http.Handler
	service *service.WeatherService
	// janitor is nil when cleanup is disabled. It is created stopped.
	janitor *cache.Janitor
}

// newApp builds the client, store, service and router described by cfg.
// The file store lives on fsys.
func newApp(cfg *config.Config, fsys afero.Fs, logger *zap.Logger) (*app, error) {
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	if !weatherClient.APIKeyConfigured() {
		logger.Warn("OPENWEATHER_API_KEY not set; weather requests will fail with 401")
	}

	if cfg.CircuitBreakerEnabled {
		weatherClient.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			HalfOpenRequests: cfg.CircuitBreakerHalfOpenRequests,
			OpenTimeout:      cfg.CircuitBreakerTimeout,
			Logger:           logger,
		}))
		observability.CircuitBreakerState.Set(0)
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var (
		store     cache.Store
		cachePing func(context.Context) error
	)
	switch cfg.CacheBackend {
	case config.BackendMemory:
		store = cache.NewMemoryStore(cfg.CacheTTL, nil)
		logger.Info("cache backend: memory", zap.Duration("ttl", cfg.CacheTTL))
	default:
		fileStore, err := cache.NewFileStore(fsys, cfg.CacheDir, cfg.CacheTTL, nil)
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
		store = fileStore
		cachePing = fileStore.Ping
		logger.Info("cache backend: file", zap.String("dir", cfg.CacheDir), zap.Duration("ttl", cfg.CacheTTL))
	}
	weatherService := service.NewWeatherService(weatherClient, store)

	var janitor *cache.Janitor
	if cfg.CleanupInterval > 0 {
		janitor, err = cache.NewJanitor(store, cfg.CleanupInterval, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("cache janitor: %w", err)
		}
	}

	handler := httphandler.NewHandler(weatherService, &httphandler.HealthConfig{
		APIConfigured: weatherClient.APIKeyConfigured(),
		CachePing:     cachePing,
	}, logger)
	router := httphandler.NewRouter(handler, logger, cfg.RequestTimeout)
	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{"*"}),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "X-Correlation-ID"}),
		gorillahandlers.ExposedHeaders([]string{"X-Correlation-ID"}),
	)

	return &app{handler: cors(router), service: weatherService, janitor: janitor}, nil
}
