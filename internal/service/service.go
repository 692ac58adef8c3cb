package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/cache"
	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/filter"
	"github.com/kjstillabower/weather-cache-proxy/internal/models"
	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
)

const (
	kindCurrent  = "current"
	kindForecast = "forecast"
)

// ErrCache marks failures of the cache store. Callers map it to an internal error;
// upstream failures keep their *client.Error instead.
var ErrCache = errors.New("cache failure")

// WeatherService orchestrates weather lookups using a cache-aside pattern with
// the upstream API as fallback. Only successful upstream responses are cached.
type WeatherService struct {
	client          client.WeatherClient
	store           cache.Store
	stampedeTracker *stampedeTracker
}

// NewWeatherService creates a WeatherService reading through store to c.
func NewWeatherService(c client.WeatherClient, store cache.Store) *WeatherService {
	return &WeatherService{
		client:          c,
		store:           store,
		stampedeTracker: newStampedeTracker(),
	}
}

// Current returns current weather for q, from cache when a fresh entry exists.
func (s *WeatherService) Current(ctx context.Context, q models.Query) (models.Cached[models.CurrentWeather], error) {
	key := cache.CurrentKey(q.City)
	if q.IsID() {
		key = cache.CurrentIDKey(q.CityID)
	}
	return lookup(ctx, s, kindCurrent, key, func(ctx context.Context) (models.CurrentWeather, error) {
		return s.client.FetchCurrent(ctx, q)
	})
}

// Forecast returns cnt forecast items for q, from cache when a fresh entry exists.
// cnt is clamped into [1, 40] before it becomes part of the key.
func (s *WeatherService) Forecast(ctx context.Context, q models.Query, cnt int) (models.Cached[models.Forecast], error) {
	cnt = client.ClampCount(cnt)
	key := cache.ForecastKey(q.City, cnt)
	if q.IsID() {
		key = cache.ForecastIDKey(q.CityID, cnt)
	}
	return lookup(ctx, s, kindForecast, key, func(ctx context.Context) (models.Forecast, error) {
		return s.client.FetchForecast(ctx, q, cnt)
	})
}

// FilteredForecast runs the Forecast flow for city and cnt, then keeps the items
// matching criteria. The filtered list itself is never cached.
func (s *WeatherService) FilteredForecast(ctx context.Context, city string, cnt int, criteria filter.Criteria) (models.Cached[[]models.ForecastItem], error) {
	res, err := s.Forecast(ctx, models.ByName(city), cnt)
	if err != nil {
		return models.Cached[[]models.ForecastItem]{}, err
	}
	items := filter.Apply(res.Data.List, criteria)
	observability.LoggerFromContext(ctx).Debug("forecast filtered",
		zap.String("city", city),
		zap.Int("items", len(res.Data.List)),
		zap.Int("matched", len(items)),
	)
	return models.Cached[[]models.ForecastItem]{
		Data:     items,
		Cached:   res.Cached,
		CachedAt: res.CachedAt,
	}, nil
}

// ClearCache removes every cache entry and returns how many were removed.
func (s *WeatherService) ClearCache(ctx context.Context) (int, error) {
	return s.clear(ctx, "clear_all", "all", s.store.ClearAll)
}

// ClearExpired removes expired cache entries and returns how many were removed.
func (s *WeatherService) ClearExpired(ctx context.Context) (int, error) {
	return s.clear(ctx, "clear_expired", "expired", s.store.ClearExpired)
}

func (s *WeatherService) clear(ctx context.Context, op, mode string, fn func(context.Context) (int, error)) (int, error) {
	start := time.Now()
	n, err := fn(ctx)
	observeCacheOp(op, start, err)
	if err != nil {
		return n, storeError(ctx, op, err)
	}
	observability.CacheClearedEntriesTotal.WithLabelValues(mode).Add(float64(n))
	observability.LoggerFromContext(ctx).Info("cache cleared", zap.String("mode", mode), zap.Int("count", n))
	return n, nil
}

// lookup is the read path shared by every route: fresh entry, else one upstream
// call whose successful result is stored before it is returned.
func lookup[T any](ctx context.Context, s *WeatherService, kind, key string, fetch func(context.Context) (T, error)) (models.Cached[T], error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("key", key))

	getStart := time.Now()
	entry, ok, err := s.store.Get(ctx, key)
	observeCacheOp("get", getStart, err)
	if err != nil {
		return models.Cached[T]{}, storeError(ctx, "get "+key, err)
	}
	if ok {
		var data T
		err := json.Unmarshal(entry.Payload, &data)
		if err == nil {
			observability.CacheHitsTotal.WithLabelValues(kind).Inc()
			storedAt := entry.StoredAt
			logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
			return models.Cached[T]{Data: data, Cached: true, CachedAt: &storedAt}, nil
		}
		logger.Warn("cached payload unreadable, refetching", zap.Error(err))
	}
	observability.CacheMissesTotal.WithLabelValues(kind).Inc()

	if n := s.stampedeTracker.RecordMiss(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(kind).Inc()
		logger.Debug("concurrent cache miss", zap.Int("concurrent", n))
	}
	defer s.stampedeTracker.RecordHit(key)

	logger.Debug("cache miss, fetching upstream")
	data, err := fetch(ctx)
	if err != nil {
		logger.Info("upstream fetch failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
		return models.Cached[T]{}, fmt.Errorf("fetch %s: %w", key, err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return models.Cached[T]{}, fmt.Errorf("encode %s: %w", key, err)
	}
	putStart := time.Now()
	err = s.store.Put(ctx, key, payload)
	observeCacheOp("put", putStart, err)
	if err != nil {
		return models.Cached[T]{}, storeError(ctx, "put "+key, err)
	}
	logger.Debug("weather served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return models.Cached[T]{Data: data}, nil
}

// storeError wraps a store failure in ErrCache. A store call that failed only
// because the request was canceled or timed out is not a cache failure.
func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrCache, op, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func observeCacheOp(op string, start time.Time, err error) {
	result := "success"
	switch {
	case err == nil:
	case isContextError(err):
		result = "canceled"
	default:
		result = "error"
		observability.CacheErrorsTotal.WithLabelValues(op).Inc()
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
