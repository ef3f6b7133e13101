// Package retry runs an operation a bounded number of times with exponential
// backoff, retrying both on errors and on results the caller rejects.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures one retry loop.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	Logger      zerolog.Logger
}

// Result describes what the loop ended with.
type Result[T any] struct {
	// Value is the most recent value the operation returned without error.
	Value    T
	HasValue bool
	Accepted bool
	Attempts int
}

// ExhaustedError is returned when the final attempt failed with an error.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Backoff is the delay slept after the given 1-based attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Sleep waits for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls op until accept approves its value or attempts run out.
//
// An op error on the last attempt yields *ExhaustedError; Result still carries
// any earlier value. A rejected value on the last attempt yields that value
// with Accepted false and a nil error, leaving the decision to the caller.
// A nil accept approves every value.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), accept func(T) bool) (Result[T], error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	name := p.Name
	if name == "" {
		name = "operation"
	}

	var res Result[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", name, err)
		}

		value, err := op(ctx, attempt)
		if err != nil {
			if attempt == maxAttempts {
				p.Logger.Error().Err(err).Str("operation", name).Int("attempts", attempt).Msg("retries exhausted")
				return res, &ExhaustedError{Name: name, Attempts: attempt, Last: err}
			}
			p.Logger.Warn().Err(err).Str("operation", name).Int("attempt", attempt).Int("max_attempts", maxAttempts).
				Dur("delay", Backoff(p.BaseDelay, attempt)).Msg("attempt failed, retrying")
		} else {
			res.Value = value
			res.HasValue = true
			if accept == nil || accept(value) {
				res.Accepted = true
				if attempt > 1 {
					p.Logger.Info().Str("operation", name).Int("attempt", attempt).Msg("retry succeeded")
				}
				return res, nil
			}
			if attempt == maxAttempts {
				p.Logger.Warn().Str("operation", name).Int("attempts", attempt).Msg("result still rejected after final attempt")
				return res, nil
			}
			p.Logger.Warn().Str("operation", name).Int("attempt", attempt).Int("max_attempts", maxAttempts).
				Dur("delay", Backoff(p.BaseDelay, attempt)).Msg("result rejected, retrying")
		}

		if err := sleep(ctx, Backoff(p.BaseDelay, attempt)); err != nil {
			return res, fmt.Errorf("%s: interrupted during backoff: %w", name, err)
		}
	}
	return res, nil
}
