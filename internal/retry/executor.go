package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
)

// Policy bounds the attempts and delays of an Executor.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// PolicyFromConfig converts the [retry] configuration section.
func PolicyFromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     time.Duration(cfg.InitialMillis) * time.Millisecond,
		Max:         time.Duration(cfg.MaxMillis) * time.Millisecond,
		Multiplier:  cfg.Multiplier,
	}
}

// WithMaxAttempts returns a copy of the policy with a different attempt limit.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Executor runs operations under a Policy.
type Executor struct {
	policy Policy
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// New constructs an Executor. A nil logger discards retry logs.
func New(policy Policy, logger *slog.Logger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2
	}
	return &Executor{
		policy: policy,
		logger: logging.NewComponentLogger(logger, "retry"),
		sleep:  sleepWithContext,
	}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// limit is reached, or ctx is done.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := DoValue(ctx, e, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		return fn(ctx)
	}
	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%s: %w (last error: %v)", operation, err, lastErr)
			}
			return zero, err
		}
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			var perm *permanentError
			if errors.As(err, &perm) {
				return zero, perm.err
			}
			return zero, err
		}
		if attempt+1 >= e.policy.MaxAttempts {
			break
		}
		delay := CalculateBackoff(attempt, e.policy.Initial, e.policy.Max, e.policy.Multiplier)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > delay {
			delay = statusErr.RetryAfter
			if e.policy.Max > 0 && delay > e.policy.Max {
				delay = e.policy.Max
			}
		}
		e.logger.Debug("retrying operation",
			logging.String("operation", operation),
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", e.policy.MaxAttempts),
			logging.Duration("backoff", delay),
			logging.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w (last error: %v)", operation, err, lastErr)
		}
	}
	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", operation, e.policy.MaxAttempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
