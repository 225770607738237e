package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// IdleSweeper is the part of services.Sessions the sweeper drives.
type IdleSweeper interface {
	AbandonIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Sweeper periodically abandons sessions that have been idle for too long.
type Sweeper struct {
	sessions IdleSweeper
	maxIdle  time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewSweeper(sessions IdleSweeper, maxIdle time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		maxIdle:  maxIdle,
		logger:   logger.With("module", "sweeper"),
	}
}

// Start schedules the sweep. Runs never overlap; a slow sweep skips the next tick.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(schedule, func() { s.Sweep(ctx) })
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Idle session sweeper started", "schedule", schedule, "max_idle", s.maxIdle)

	return nil
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	count, err := s.sessions.AbandonIdle(ctx, s.maxIdle)
	if err != nil {
		s.logger.ErrorContext(ctx, "Idle session sweep failed", "abandoned", count, "error", err)

		return
	}

	s.logger.DebugContext(ctx, "Idle session sweep finished", "abandoned", count)
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}
