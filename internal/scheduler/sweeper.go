// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Expirer resets checkouts that have been pending for longer than ttl.
type Expirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweeper periodically returns stale pending participants to waiting.
type Sweeper struct {
	sched gocron.Scheduler
}

// StartSweeper schedules the pending sweep every interval, starting
// immediately.  Each run is bounded by the interval so a slow store cannot
// stack runs; overlapping runs are skipped.
func StartSweeper(exp Expirer, ttl, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := exp.ExpirePending(ctx, ttl); err != nil {
				logger.Error("pending sweep failed", "error", err)
			}
		}),
		gocron.WithName("pending-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule pending sweep: %w", err)
	}
	sched.Start()
	logger.Info("pending sweeper started", "ttl", ttl, "interval", interval)
	return &Sweeper{sched: sched}, nil
}

// Stop waits for a running sweep and stops the scheduler.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
