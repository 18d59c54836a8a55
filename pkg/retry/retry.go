package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrExhausted tags the last failure once every attempt has been used.
	ErrExhausted = errors.New("retries exhausted")
	// ErrCancelled is returned when the context ends before or between attempts.
	ErrCancelled = errors.New("cancelled")
)

// Policy configures bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	Logger  *zap.Logger
}

// DefaultPolicy returns three attempts with 2s base and 10s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// ExhaustedError carries the last failure after all attempts failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is matches ErrExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Backoff returns the un-jittered delay after the given 1-based attempt:
// min(MaxDelay, BaseDelay*2^(attempt-1)).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// delay applies equal jitter: a random value in [d/2, d].
func (p Policy) delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if !p.Jitter || d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}

// Do runs op until it succeeds, isRetryable rejects its failure, or
// MaxAttempts is reached. It returns the number of attempts made.
func Do[T any](ctx context.Context, p Policy, isRetryable func(error) bool, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if isRetryable == nil || !isRetryable(err) {
			return zero, attempt, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		d := p.delay(attempt)
		logger.Debug("retry_scheduled",
			zap.Int("attempt", attempt),
			zap.Duration("delay", d),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}
		if err := sleepWithContext(ctx, d); err != nil {
			return zero, attempt, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}

	return zero, p.MaxAttempts, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
