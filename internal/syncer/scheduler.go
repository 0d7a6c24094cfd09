package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/btcplaces/btcplaces/internal/model"
)

// PassRunner runs one sync pass.
type PassRunner interface {
	Run(ctx context.Context) (*model.SyncPass, error)
}

// Scheduler triggers passes on a fixed cadence: one pass immediately at
// start, then one per interval. A failed pass re-arms the timer with the
// shorter retry delay instead, indefinitely, so a sustained upstream
// outage surfaces as stale data rather than a dead scheduler.
type Scheduler struct {
	runner     PassRunner
	interval   time.Duration
	retryDelay time.Duration
	inFlight   atomic.Bool
}

// NewScheduler creates a Scheduler. Both delays are injected so tests can
// run the loop with millisecond cadences.
func NewScheduler(runner PassRunner, interval, retryDelay time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, retryDelay: retryDelay}
}

// Run blocks until ctx is cancelled, re-arming one timer between passes.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "syncer.scheduler"))
	log.Info("starting sync scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("retry_delay", s.retryDelay),
	)

	timer := time.NewTimer(s.runOnce(ctx, log))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sync scheduler stopped")
			return
		case <-timer.C:
			timer.Reset(s.runOnce(ctx, log))
		}
	}
}

// runOnce executes a pass and returns the delay until the next trigger.
// The in-flight guard skips a trigger that fires while a pass is still
// running: overlapping passes would race unordered writes to the same id.
func (s *Scheduler) runOnce(ctx context.Context, log *zap.Logger) time.Duration {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Warn("previous pass still in flight, skipping trigger")
		return s.interval
	}
	defer s.inFlight.Store(false)

	if _, err := s.runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return s.interval
		}
		log.Warn("pass failed, scheduling full retry",
			zap.Duration("retry_in", s.retryDelay),
			zap.Error(err),
		)
		return s.retryDelay
	}
	return s.interval
}
