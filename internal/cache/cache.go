package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Store defines the interface for response cache implementations. Entries are
// opaque JSON payloads; the store owns the TTL and decides freshness on read.
type Store interface {
	// Get returns the entry for key if present and younger than the TTL.
	// Returns (entry, true, nil) on hit, (zero, false, nil) on miss or expiry.
	// Stale entries are left in place.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put stores payload under key with the current time, replacing any prior entry.
	Put(ctx context.Context, key string, payload json.RawMessage) error
	// ClearAll removes every entry and returns how many were removed.
	ClearAll(ctx context.Context) (int, error)
	// ClearExpired removes entries whose age reached the TTL and returns how many were removed.
	ClearExpired(ctx context.Context) (int, error)
}

// Pinger is implemented by stores that can report backing-storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Entry is one cached upstream response.
type Entry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"cached_at"`
}

// ErrInvalidKey is returned for empty cache keys.
var ErrInvalidKey = errors.New("cache: invalid key")

// expired reports whether an entry stored at storedAt is stale at now.
// Get and ClearExpired share this so that an entry is never both unreadable and kept.
func expired(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) >= ttl
}

// CurrentKey returns the cache key for a current-weather lookup by city name.
func CurrentKey(city string) string {
	return "weather_" + normalizeCity(city)
}

// CurrentIDKey returns the cache key for a current-weather lookup by city id.
func CurrentIDKey(id int64) string {
	return "weather_id_" + strconv.FormatInt(id, 10)
}

// ForecastKey returns the cache key for a forecast lookup by city name.
// Filtered forecasts share this key: filtering runs after the cache.
func ForecastKey(city string, cnt int) string {
	return "forecast_" + normalizeCity(city) + "_" + strconv.Itoa(cnt)
}

// ForecastIDKey returns the cache key for a forecast lookup by city id.
func ForecastIDKey(id int64, cnt int) string {
	return "forecast_id_" + strconv.FormatInt(id, 10) + "_" + strconv.Itoa(cnt)
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
