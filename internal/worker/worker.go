// Package worker drains queued executions and settles overdue ones: expired
// suspensions and runs abandoned by a stopped process.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"creativeflow/internal/domain"
)

const defaultPollInterval = 2 * time.Second

// Claimer hands out queued executions under a run lease.
type Claimer interface {
	ClaimQueued(ctx context.Context) (*domain.Execution, error)
}

// Advancer runs a claimed execution to its next resting state.
type Advancer interface {
	Advance(ctx context.Context, exec *domain.Execution) (*domain.Execution, error)
}

// OverdueSweeper settles executions past their deadline or lease.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

// Worker polls for queued executions and advances one at a time.
type Worker struct {
	claimer      Claimer
	driver       Advancer
	pollInterval time.Duration
	logger       zerolog.Logger
}

func New(claimer Claimer, driver Advancer, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Worker{
		claimer:      claimer,
		driver:       driver,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is cancelled. A claimed execution is always driven
// to completion even if ctx ends mid-run.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("worker started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to claim execution")
		}
		if worked && err == nil {
			continue
		}
		if !sleep(ctx, w.pollInterval) {
			return ctx.Err()
		}
	}
}

// RunOnce claims and advances at most one execution. It reports whether an
// execution was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	exec, err := w.claimer.ClaimQueued(ctx)
	if errors.Is(err, domain.ErrNoWork) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := w.logger.With().Str("execution_id", exec.ID).Logger()
	logger.Info().Msg("picked execution")
	start := time.Now()
	out, err := w.driver.Advance(context.WithoutCancel(ctx), exec)
	if err != nil {
		logger.Error().Err(err).Msg("execution advance failed")
		return true, nil
	}
	ev := logger.Info().Str("status", string(out.Status)).Dur("elapsed", time.Since(start))
	if out.Failure != nil {
		ev = ev.Str("failure_code", out.Failure.Code)
	}
	ev.Msg("execution advanced")
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Sweeper periodically settles overdue executions on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	target OverdueSweeper
	clock  func() time.Time
	logger zerolog.Logger
}

// NewSweeper parses schedule, which accepts standard five-field specs and
// descriptors such as "@every 5m".
func NewSweeper(schedule string, target OverdueSweeper, logger zerolog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(),
		target: target,
		clock:  time.Now,
		logger: logger.With().Str("component", "overdue-sweeper").Logger(),
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

// Sweep runs one pass.
func (s *Sweeper) Sweep() {
	n, err := s.target.SweepOverdue(context.Background(), s.clock())
	if err != nil {
		s.logger.Error().Err(err).Int("settled", n).Msg("overdue sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("settled", n).Msg("settled overdue executions")
	}
}
