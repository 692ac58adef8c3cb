package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
)

const DefaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5"

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend    string // "file" or "memory"
	CacheDir        string
	CacheTTL        time.Duration
	CleanupInterval time.Duration // 0 disables the janitor

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold uint32
	CircuitBreakerHalfOpenRequests uint32
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	WarmCache     bool
	WarmInterval  time.Duration
	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string   `yaml:"backend"`
		Dir             string   `yaml:"dir"`
		TTL             string   `yaml:"ttl"`
		CleanupInterval string   `yaml:"cleanup_interval"`
		Warm            bool     `yaml:"warm"`
		WarmInterval    string   `yaml:"warm_interval"`
		TrackedCities   []string `yaml:"tracked_cities"`
	} `yaml:"cache"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold uint32 `yaml:"failure_threshold"`
		HalfOpenRequests uint32 `yaml:"half_open_requests"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration relative to the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads configuration in increasing precedence: config/{ENV_NAME}.yaml
// (default dev) and config/secrets.yaml under root, then root/.env, then the
// process environment. Every file is optional. An empty API key is not an error;
// the service starts and upstream calls fail with an invalid-key error.
func LoadFrom(root string) (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8000")

	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("OPENWEATHER_BASE_URL"), fc.WeatherAPI.URL, DefaultWeatherAPIURL)
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 10*time.Second)
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("API_TIMEOUT: %w", err)
		}
		cfg.WeatherAPITimeout = d
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 0)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendFile))
	cfg.CacheDir = firstNonEmpty(os.Getenv("CACHE_DIR"), fc.Cache.Dir, "cache")
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 300*time.Second)
	if v := os.Getenv("CACHE_EXPIRY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("CACHE_EXPIRY_SECONDS: %w", err)
		}
		cfg.CacheTTL = d
	}
	cfg.CleanupInterval = parseDurationOrZero(fc.Cache.CleanupInterval, 0)
	if v := os.Getenv("CACHE_CLEANUP_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("CACHE_CLEANUP_INTERVAL: %w", err)
		}
		cfg.CleanupInterval = d
	}
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.TrackedCities = fc.Cache.TrackedCities

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold == 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerHalfOpenRequests = fc.CircuitBreaker.HalfOpenRequests
	if cfg.CircuitBreakerHalfOpenRequests == 0 {
		cfg.CircuitBreakerHalfOpenRequests = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseSeconds parses an environment value as whole or fractional seconds.
// A Go duration string ("90s", "2m") is also accepted.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout so the upstream deadline fires first.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_EXPIRY_SECONDS must be positive")
	}
	if cfg.CleanupInterval < 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL must not be negative")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %q", cfg.ServerPort)
	}
	switch cfg.CacheBackend {
	case BackendFile:
		if cfg.CacheDir == "" {
			return fmt.Errorf("CACHE_DIR required for file backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("cache.backend must be %s or %s, got %q", BackendFile, BackendMemory, cfg.CacheBackend)
	}
	if cfg.WarmCache && len(cfg.TrackedCities) == 0 {
		return fmt.Errorf("cache.warm requires cache.tracked_cities")
	}
	return nil
}
