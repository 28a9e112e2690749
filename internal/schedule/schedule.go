// Package schedule runs trip cycles on a fixed interval.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/starford/tripwatch/internal/cycle"
)

// Runner is satisfied by *cycle.Orchestrator.
type Runner interface {
	TryRun(ctx context.Context) (cycle.Outcome, bool)
}

// Config controls when cycles fire.
type Config struct {
	// Interval between cycle starts.
	Interval time.Duration
	// FirstDelay is the wait before the first cycle after startup.
	FirstDelay time.Duration
}

// Run blocks until ctx is cancelled. The first cycle starts after
// cfg.FirstDelay, later ones every cfg.Interval. A tick that lands while a
// cycle is still running is dropped.
func Run(ctx context.Context, r Runner, cfg Config, logger *slog.Logger) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("schedule: interval must be positive, got %s", cfg.Interval)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	job := func() {
		if _, ran := r.TryRun(ctx); !ran {
			logger.Info("schedule: tick skipped, cycle in progress")
		}
	}

	timer := time.NewTimer(cfg.FirstDelay)
	defer timer.Stop()
	logger.Info("schedule: waiting for first cycle",
		slog.String("first_delay", cfg.FirstDelay.String()),
		slog.String("interval", cfg.Interval.String()))

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	if _, err := c.AddFunc("@every "+cfg.Interval.String(), job); err != nil {
		return fmt.Errorf("schedule: add job: %w", err)
	}
	c.Start()
	job()

	<-ctx.Done()
	logger.Info("schedule: stopping")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
