package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
)

// Janitor periodically removes expired entries from a Store. Without it stale
// entries stay on disk until DELETE /weather/cache/clear-expired is called.
type Janitor struct {
	store     Store
	logger    *zap.Logger
	scheduler gocron.Scheduler
}

// NewJanitor schedules ClearExpired every interval. Call Start to begin and Stop on shutdown.
func NewJanitor(store Store, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("janitor interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []gocron.SchedulerOption
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("janitor scheduler: %w", err)
	}
	j := &Janitor{store: store, logger: logger, scheduler: s}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = j.Sweep(ctx)
		}),
		gocron.WithName("cache-clear-expired"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("janitor job: %w", err)
	}
	return j, nil
}

// Start begins the periodic sweep.
func (j *Janitor) Start() {
	j.scheduler.Start()
}

// Stop waits for a running sweep and stops the scheduler.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

// Sweep runs one ClearExpired pass and records the outcome.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := j.store.ClearExpired(ctx)
	observability.CacheOperationDurationSeconds.WithLabelValues("clear_expired", resultLabel(err)).Observe(time.Since(start).Seconds())
	if n > 0 {
		observability.CacheClearedEntriesTotal.WithLabelValues("janitor").Add(float64(n))
	}
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("clear_expired").Inc()
		j.logger.Warn("cache janitor sweep failed", zap.Int("removed", n), zap.Error(err))
		return n, err
	}
	j.logger.Debug("cache janitor sweep", zap.Int("removed", n))
	return n, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
