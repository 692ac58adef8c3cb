//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/kjstillabower/weather-cache-proxy/internal/cache"
	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/config"
	"github.com/kjstillabower/weather-cache-proxy/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey   string
	APIURL   string
	CacheDir string
	CacheTTL time.Duration
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("OPENWEATHER_BASE_URL")
	if apiURL == "" {
		apiURL = config.DefaultWeatherAPIURL
	}

	return IntegrationTestConfig{
		APIKey:   apiKey,
		APIURL:   apiURL,
		CacheDir: filepath.Join(t.TempDir(), "cache"),
		CacheTTL: 5 * time.Minute,
	}
}

// SetupIntegrationService creates a service backed by the real API and a FileStore
// on disk under the test's temp dir. The directory is removed with the test.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *cache.FileStore) {
	t.Helper()
	store, err := cache.NewFileStore(afero.NewOsFs(), cfg.CacheDir, cfg.CacheTTL, nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return service.NewWeatherService(SetupIntegrationClient(t, cfg), store), store
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
