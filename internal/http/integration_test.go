//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
	testhelpers "github.com/kjstillabower/weather-cache-proxy/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationRouter wires the full stack against the live API with an on-disk cache.
func setupIntegrationRouter(t *testing.T) http.Handler {
	cfg := testhelpers.GetIntegrationConfig(t)
	weatherService, store := testhelpers.SetupIntegrationService(t, cfg)
	handler := NewHandler(weatherService, &HealthConfig{APIConfigured: true, CachePing: store.Ping}, testLogger)
	return NewRouter(handler, testLogger, 15*time.Second)
}

func makeIntegrationRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestIntegration_GetCurrent_MissThenHit(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, http.MethodGet, "/weather/current/London")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var first envelope
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first request should come from upstream")
	}

	w = makeIntegrationRequest(t, router, http.MethodGet, "/weather/current/london")
	var second envelope
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.CachedAt == nil {
		t.Error("second request should be served from the file cache")
	}
}

func TestIntegration_GetForecast_Filter(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, http.MethodGet, "/weather/forecast/Paris/filter?cnt=16&min_humidity=0&max_humidity=100")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(resp.Data, &items); err != nil {
		t.Fatalf("data is not an array: %v", err)
	}
	if len(items) != 16 {
		t.Errorf("got %d items, want all 16 within full humidity range", len(items))
	}
}

func TestIntegration_UnknownCity(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, http.MethodGet, "/weather/current/Unknown123")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404. Body: %s", w.Code, w.Body.String())
	}
	w = makeIntegrationRequest(t, router, http.MethodDelete, "/weather/cache/clear")
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("cache not empty after 404: %s", w.Body.String())
	}
}

func TestIntegration_GetHealth_FullStack(t *testing.T) {
	router := setupIntegrationRouter(t)
	w := makeIntegrationRequest(t, router, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
}

func TestIntegration_GetMetrics_Format(t *testing.T) {
	router := setupIntegrationRouter(t)
	makeIntegrationRequest(t, router, http.MethodGet, "/weather/current/Berlin")

	w := makeIntegrationRequest(t, router, http.MethodGet, "/metrics")
	body := w.Body.String()
	for _, metric := range []string{"httpRequestsTotal", "weatherApiCallsTotal"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}
