package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"
)

const DefaultSchedule = "@every 1h"

// Scheduler triggers the sweeper on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	now     func() time.Time
	logger  *slog.Logger

	mu  sync.Mutex
	ctx context.Context
	wg  sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler parses spec with robfig/cron: descriptors such as "@every 1h" or a
// six-field expression with seconds.
func NewScheduler(sweeper *Sweeper, spec string, loc *time.Location, logger *slog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.NewWithLocation(loc),
		sweeper: sweeper,
		now:     time.Now,
		logger:  logger,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid escalation schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done and in-flight sweeps return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("escalation scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.wg.Wait()
	s.logger.Info("escalation scheduler stopped")
	return nil
}

// Tick runs one sweep immediately, outside the schedule.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	report, err := s.sweeper.Run(ctx, s.now())
	if err != nil {
		s.logger.Error("escalation sweep aborted", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return report, err
	}
	s.logger.Debug("escalation sweep completed", "report", report.String(), "duration_ms", time.Since(start).Milliseconds())
	return report, nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	_, _ = s.Tick(ctx)
}
