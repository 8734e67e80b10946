// Package scheduler triggers the daily sweep on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// SweepRunner is satisfied by *engine.Sweeper.
type SweepRunner interface {
	Sweep(ctx context.Context, ref time.Time) (int, error)
}

// Scheduler runs a sweep each time Spec fires in Location.
type Scheduler struct {
	Spec     string
	Location *time.Location
	Sweeper  SweepRunner
	Clock    engine.Clock
}

// Start validates the schedule and runs it until ctx is cancelled.
// It waits for a running sweep to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Sweeper == nil {
		return errors.New(config.ErrSweeperMissing)
	}
	loc := s.location()
	if _, err := cron.ParseStandard(s.Spec); err != nil {
		return fmt.Errorf("%s %q: %w", config.ErrCronSpec, s.Spec, err)
	}

	logger := slogLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.Spec, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("%s %q: %w", config.ErrCronSpec, s.Spec, err)
	}

	c.Start()
	slog.Info(config.MsgSchedulerStart,
		config.LogKeyComponent, config.CompScheduler,
		config.LogKeySchedule, s.Spec,
		config.LogKeyTimezone, loc.String(),
	)

	<-ctx.Done()
	slog.Info(config.MsgSchedulerStop, config.LogKeyComponent, config.CompScheduler)
	<-c.Stop().Done()
	return nil
}

// RunOnce sweeps with today's civil date in Location as the reference.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	clock := s.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}
	started := time.Now()
	ref := engine.CivilDate(clock.Now(), s.location())

	updated, err := s.Sweeper.Sweep(ctx, ref)
	if err != nil {
		slog.Error(config.MsgSchedulerFailed,
			config.LogKeyComponent, config.CompScheduler,
			config.LogKeyError, err,
		)
		return updated, err
	}
	slog.Info(config.MsgSweepDone,
		config.LogKeyComponent, config.CompScheduler,
		config.LogKeyUpdated, updated,
		config.LogKeyDuration, time.Since(started).Milliseconds(),
	)
	return updated, nil
}

// Next returns the first activation strictly after from.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(s.Spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", config.ErrCronSpec, s.Spec, err)
	}
	return sched.Next(from.In(s.location())), nil
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// slogLogger routes cron's internal logging to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(msg, append([]any{config.LogKeyComponent, config.CompScheduler}, keysAndValues...)...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(msg, append([]any{config.LogKeyComponent, config.CompScheduler, config.LogKeyError, err}, keysAndValues...)...)
}
