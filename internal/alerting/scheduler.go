package alerting

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/lock"
	"github.com/good-yellow-bee/callwatch/internal/metrics"
)

// Scheduler runs an engine pass immediately and then on every tick.
type Scheduler struct {
	engine   *Engine
	locker   lock.Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. A nil locker uses an in-process lock.
func NewScheduler(engine *Engine, locker lock.Locker, interval time.Duration, logger *zap.Logger) *Scheduler {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{engine: engine, locker: locker, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("processing pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single pass under the pass lock. ran is false when another
// pass held the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (count int, ran bool, err error) {
	release, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		metrics.PassesSkippedTotal.Inc()
		s.logger.Info("pass lock held elsewhere, skipping pass")
		return 0, false, nil
	}
	defer release()

	count, err = s.engine.ProcessUnprocessedLogs(ctx)
	return count, true, err
}
