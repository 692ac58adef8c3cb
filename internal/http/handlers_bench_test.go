package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/cache"
	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/service"
)

func setupBenchmarkRouter(b *testing.B, mc *mockWeatherClient) http.Handler {
	b.Helper()
	store := cache.NewMemoryStore(time.Hour, nil)
	h := NewHandler(service.NewWeatherService(mc, store), &HealthConfig{APIConfigured: true}, zap.NewNop())
	return NewRouter(h, zap.NewNop(), 5*time.Second)
}

func benchmarkRequest(b *testing.B, router http.Handler, method, path string) {
	b.Helper()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	}
}

func BenchmarkHandler_GetCurrent_CacheHit(b *testing.B) {
	router := setupBenchmarkRouter(b, &mockWeatherClient{current: parisCurrent})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weather/current/Paris", nil))
	benchmarkRequest(b, router, http.MethodGet, "/weather/current/Paris")
}

func BenchmarkHandler_GetFilteredForecast_CacheHit(b *testing.B) {
	router := setupBenchmarkRouter(b, &mockWeatherClient{forecast: parisForecast})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weather/forecast/Paris?cnt=16", nil))
	benchmarkRequest(b, router, http.MethodGet, "/weather/forecast/Paris/filter?cnt=16&min_temp=15&max_temp=25")
}

func BenchmarkHandler_GetCurrent_UpstreamError(b *testing.B) {
	router := setupBenchmarkRouter(b, &mockWeatherClient{err: client.ErrCityNotFound})
	benchmarkRequest(b, router, http.MethodGet, "/weather/current/Unknown123")
}

func BenchmarkHandler_ValidationError(b *testing.B) {
	router := setupBenchmarkRouter(b, &mockWeatherClient{})
	benchmarkRequest(b, router, http.MethodGet, "/weather/forecast/Paris?cnt=99")
}

func BenchmarkHandler_GetHealth(b *testing.B) {
	router := setupBenchmarkRouter(b, &mockWeatherClient{})
	benchmarkRequest(b, router, http.MethodGet, "/health")
}
