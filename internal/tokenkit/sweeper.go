package tokenkit

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// Sweeper periodically deletes refresh token rows that are past their natural
// expiry. The blacklist needs no sweeping; its entries self-expire.
type Sweeper struct {
	scheduler gocron.Scheduler
	store     RefreshTokenStore
	interval  time.Duration
	logger    *zap.Logger
	metrics   MetricsRecorder
}

// NewSweeper builds a sweeper; call Start to schedule it.
func NewSweeper(store RefreshTokenStore, interval time.Duration, logger *zap.Logger, metrics MetricsRecorder) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper.missing_store")
	}
	if interval <= 0 {
		return nil, errors.New("sweeper.invalid_interval")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	scheduler, schedulerErr := gocron.NewScheduler()
	if schedulerErr != nil {
		return nil, schedulerErr
	}
	return &Sweeper{
		scheduler: scheduler,
		store:     store,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Start schedules the periodic sweep.
func (sweeper *Sweeper) Start() error {
	_, jobErr := sweeper.scheduler.NewJob(
		gocron.DurationJob(sweeper.interval),
		gocron.NewTask(sweeper.sweep),
	)
	if jobErr != nil {
		return jobErr
	}
	sweeper.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (sweeper *Sweeper) Stop() error {
	return sweeper.scheduler.Shutdown()
}

func (sweeper *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	removed, sweepErr := sweeper.store.DeleteExpired(ctx)
	if sweepErr != nil {
		sweeper.logger.Error("refresh token sweep failed", zap.Error(sweepErr))
		return
	}
	if removed > 0 {
		sweeper.metrics.Increment(MetricSweepRemovedEntries)
		sweeper.logger.Info("removed expired refresh tokens", zap.Int64("count", removed))
	}
}
