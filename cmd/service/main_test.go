package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/config"
)

const parisCurrent = `{"id":2988507,"name":"Paris","main":{"temp":17.5,"humidity":64},"weather":[{"main":"Clouds"}]}`

// loadTestConfig loads configuration from an empty root with env overrides,
// so nothing from the developer's environment leaks in.
func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "PORT", "OPENWEATHER_API_KEY", "OPENWEATHER_BASE_URL", "API_TIMEOUT",
		"CACHE_BACKEND", "CACHE_DIR", "CACHE_EXPIRY_SECONDS", "CACHE_CLEANUP_INTERVAL",
	} {
		t.Setenv(k, env[k])
	}
	cfg, err := config.LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

// newUpstream serves parisCurrent for every request and counts calls.
func newUpstream(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(parisCurrent))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func serve(a *app, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", "http://example.test")
	a.handler.ServeHTTP(w, req)
	return w
}

func TestNewApp_FileBackendServesThroughCache(t *testing.T) {
	upstream, calls := newUpstream(t)
	cfg := loadTestConfig(t, map[string]string{
		"OPENWEATHER_API_KEY":  "test-key",
		"OPENWEATHER_BASE_URL": upstream.URL + "/data/2.5",
		"CACHE_DIR":            "cache",
	})
	fsys := afero.NewMemMapFs()
	a, err := newApp(cfg, fsys, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.janitor != nil {
		t.Error("janitor created without a cleanup interval")
	}

	for i, wantCached := range []bool{false, true} {
		w := serve(a, http.MethodGet, "/weather/current/Paris")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, body %s", i, w.Code, w.Body.String())
		}
		var body struct {
			Cached bool `json:"cached"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Cached != wantCached {
			t.Errorf("request %d: cached = %v, want %v", i, body.Cached, wantCached)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if ok, _ := afero.Exists(fsys, "cache/weather_paris.json"); !ok {
		t.Error("cache file weather_paris.json not written")
	}

	w := serve(a, http.MethodGet, "/health")
	var health struct {
		Status        string            `json:"status"`
		APIConfigured bool              `json:"api_configured"`
		Checks        map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || health.Status != "healthy" || !health.APIConfigured || health.Checks["cache"] != "healthy" {
		t.Errorf("health = %d %+v", w.Code, health)
	}
}

func TestNewApp_MissingAPIKey(t *testing.T) {
	upstream, calls := newUpstream(t)
	cfg := loadTestConfig(t, map[string]string{
		"OPENWEATHER_BASE_URL": upstream.URL + "/data/2.5",
		"CACHE_BACKEND":        "memory",
	})
	a, err := newApp(cfg, afero.NewMemMapFs(), zap.NewNop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	if w := serve(a, http.MethodGet, "/weather/current/Paris"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}

	w := serve(a, http.MethodGet, "/health")
	var health struct {
		APIConfigured bool              `json:"api_configured"`
		Checks        map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.APIConfigured {
		t.Error("api_configured = true without a key")
	}
	if _, ok := health.Checks["cache"]; ok {
		t.Error("memory backend reported a cache storage check")
	}
}

func TestNewApp_CleanupIntervalCreatesJanitor(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"CACHE_BACKEND":          "memory",
		"CACHE_CLEANUP_INTERVAL": "60",
	})
	a, err := newApp(cfg, afero.NewMemMapFs(), zap.NewNop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.janitor == nil {
		t.Fatal("janitor = nil with a cleanup interval")
	}
	a.janitor.Start()
	if err := a.janitor.Stop(); err != nil {
		t.Errorf("janitor Stop() error = %v", err)
	}
}

func TestNewApp_ClearRoutesReachStore(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"CACHE_BACKEND": "memory"})
	a, err := newApp(cfg, afero.NewMemMapFs(), zap.NewNop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if w := serve(a, http.MethodDelete, "/weather/cache/clear"); w.Code != http.StatusOK {
		t.Errorf("DELETE /weather/cache/clear status = %d", w.Code)
	}
	if w := serve(a, http.MethodGet, "/weather/cache/clear"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /weather/cache/clear status = %d, want 405", w.Code)
	}
}
