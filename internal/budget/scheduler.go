package budget

import (
	"context"
	"log/slog"
	"time"
)

// Resetter is the interface the scheduler drives. Implemented by Enforcer;
// it exists to allow testing without a real database.
type Resetter interface {
	ResetDailyBudgets(ctx context.Context) (int64, error)
}

// Scheduler runs the daily budget reset. It ticks at a short interval and
// fires the reset once per UTC day rollover, so a restart mid-day does not
// wipe accumulated spend.
type Scheduler struct {
	resetter Resetter
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}

	lastReset time.Time
}

// NewScheduler creates a Scheduler checking for day rollover every
// interval.
func NewScheduler(resetter Resetter, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		resetter:  resetter,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
		lastReset: time.Now().UTC(),
	}
}

// Start blocks, checking for rollover on a timer, until Stop is called or
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.maybeReset(ctx)
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Stop terminates the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) maybeReset(ctx context.Context) {
	now := time.Now().UTC()
	if sameDay(s.lastReset, now) {
		return
	}

	if _, err := s.resetter.ResetDailyBudgets(ctx); err != nil {
		s.logger.Error("scheduled daily reset failed", slog.Any("error", err))
		return
	}
	s.lastReset = now
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
