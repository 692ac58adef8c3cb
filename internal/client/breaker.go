package client

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for upstream calls.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// HalfOpenRequests is the number of probe requests allowed while half-open.
	HalfOpenRequests uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// NewCircuitBreaker builds a breaker that only counts provider-side failures.
// Not-found and auth rejections are answers from a healthy upstream and never trip it.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.Set(breakerStateValue(to))
			logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, ErrCityNotFound) || errors.Is(err, ErrInvalidAPIKey)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
