// Package retry runs slow remote operations with a bounded number of attempts
// and a constant delay between them.
//
// Size-limit violations abort immediately and security violations are fatal;
// anything else is retried. Exhausting all attempts is not an error: Do
// returns a Result with OK false and leaves the decision to the caller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/services"
)

// DefaultMaxTries is used when Options.MaxTries is not positive.
const DefaultMaxTries = 3

// ErrFatal marks a failure that must not be retried and should end the job
// as a security violation.
var ErrFatal = errors.New("fatal remote failure")

// ErrAborted marks a failure that stopped the retry loop before exhaustion.
var ErrAborted = errors.New("remote operation aborted")

// Operation is one attempt at the remote call.
type Operation func(ctx context.Context, attempt int) error

// Options configures Do.
type Options struct {
	Name             string
	MaxTries         int
	Delay            time.Duration
	Interactive      bool
	InteractiveDelay time.Duration
	// Preflight runs at the start of each attempt until it passes once. Its
	// errors are classified like operation errors and the operation is not
	// invoked on an attempt whose preflight failed.
	Preflight func(ctx context.Context) error
	Logger    *slog.Logger
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig builds Options from the retry section.
func OptionsFromConfig(cfg *config.Config, name string, interactive bool) Options {
	opts := Options{Name: name, Interactive: interactive, MaxTries: DefaultMaxTries}
	if cfg != nil {
		opts.MaxTries = cfg.Retry.MaxTries
		opts.Delay = time.Duration(cfg.Retry.DelaySeconds) * time.Second
		opts.InteractiveDelay = time.Duration(cfg.Retry.InteractiveDelaySeconds) * time.Second
	}
	return opts
}

// Result summarises a completed Do call.
type Result struct {
	OK       bool
	Attempts int
	LastErr  error
}

// Do runs op until it succeeds, hits a non-retryable failure, or MaxTries
// retryable failures have occurred.
//
// A size-exceeded failure (from the preflight or the operation) returns an
// error wrapping ErrAborted and services.ErrSizeExceeded. A security failure
// returns an error wrapping ErrFatal and services.ErrSecurity. Exhaustion
// returns Result{OK: false} and a nil error. Context cancellation returns
// ctx.Err().
func Do(ctx context.Context, op Operation, opts Options) (Result, error) {
	if op == nil {
		return Result{}, errors.New("retry: operation is required")
	}
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	name := opts.Name
	if name == "" {
		name = "remote operation"
	}

	var result Result
	preflightPassed := false
	for attempt := 1; attempt <= maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempts = attempt

		var err error
		if opts.Preflight != nil && !preflightPassed {
			if err = opts.Preflight(ctx); err != nil {
				err = fmt.Errorf("preflight: %w", err)
				logger.Warn("preflight check failed; operation not attempted",
					logging.String("operation", name),
					logging.Int("attempt", attempt),
					logging.Error(err),
					logging.String(logging.FieldEventType, "retry_preflight_failed"),
				)
			} else {
				preflightPassed = true
			}
		}
		if err == nil {
			err = op(ctx, attempt)
			if err == nil {
				result.OK = true
				result.LastErr = nil
				if attempt > 1 {
					logger.Info("remote operation succeeded after retry",
						logging.String("operation", name),
						logging.Int("attempt", attempt),
					)
				}
				return result, nil
			}
		}
		result.LastErr = err

		switch {
		case errors.Is(err, services.ErrSizeExceeded):
			logger.Warn("remote operation aborted: size limit exceeded",
				logging.String("operation", name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "retry_aborted"),
			)
			return result, fmt.Errorf("%w: %s: %w", ErrAborted, name, err)
		case errors.Is(err, services.ErrSecurity):
			logger.Error("remote operation refused: security violation",
				logging.String("operation", name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "retry_fatal"),
			)
			return result, fmt.Errorf("%w: %s: %w", ErrFatal, name, err)
		case ctx.Err() != nil:
			return result, ctx.Err()
		}

		if attempt == maxTries {
			break
		}
		delay := opts.Delay
		if opts.Interactive {
			delay = opts.InteractiveDelay
		}
		logging.WarnWithContext(logger, "remote operation failed; retrying", "retry_scheduled",
			logging.String("operation", name),
			logging.Int("attempt", attempt),
			logging.Int("max_tries", maxTries),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient remote failure"),
			logging.String(logging.FieldImpact, "job waits before the next attempt"),
		)
		if opts.Interactive {
			err = countdown(ctx, delay, logger, sleep)
		} else {
			err = sleep(ctx, delay)
		}
		if err != nil {
			return result, err
		}
	}

	logging.WarnWithContext(logger, "remote operation exhausted retries", "retry_exhausted",
		logging.String("operation", name),
		logging.Int("attempts", result.Attempts),
		logging.Error(result.LastErr),
		logging.String(logging.FieldImpact, "job will be marked as failed"),
	)
	return result, nil
}

// countdown waits delay in one-second steps, logging the remaining time.
func countdown(ctx context.Context, delay time.Duration, logger *slog.Logger, sleep func(context.Context, time.Duration) error) error {
	for remaining := delay; remaining > 0; {
		logger.Info("retrying", logging.Duration("in", remaining))
		step := time.Second
		if remaining < step {
			step = remaining
		}
		if err := sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
