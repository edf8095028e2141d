package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether and when a failed attempt is repeated
type RetryPolicy interface {
	// ShouldRetry reports whether attempt (zero based) may be followed by
	// another, and after which delay
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// NextDelay calculates the delay after attempt
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry policy
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxAttempts of zero retries until the context ends
	MaxAttempts int
	Jitter      bool
	// Retryable classifies errors; nil retries every error not marked
	// Permanent
	Retryable func(error) bool
}

// NewExponentialBackoff creates a new exponential backoff policy
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if e.MaxAttempts > 0 && attempt >= e.MaxAttempts {
		return false, 0
	}
	if !e.retryable(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

// NextDelay implements RetryPolicy
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))

	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	// ±15%
	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

func (e *ExponentialBackoff) retryable(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if e.Retryable != nil {
		return e.Retryable(err)
	}
	return true
}

// Notify is called before each wait with the failed attempt's error
type Notify func(err error, attempt int, delay time.Duration)

// Retry calls fn until it succeeds, the policy gives up or ctx ends. The
// last error from fn is returned when the policy gives up. An error marked
// with Reset restarts the attempt count before the policy is consulted.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error, notify Notify) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		var reset *ResetError
		if errors.As(err, &reset) {
			attempt = 0
		}

		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			return err
		}
		if notify != nil {
			notify(err, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// PermanentError stops Retry regardless of the policy
type PermanentError struct {
	Err error
}

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (p *PermanentError) Error() string {
	return p.Err.Error()
}

func (p *PermanentError) Unwrap() error {
	return p.Err
}

// ResetError marks a failure that followed progress, such as a connection
// that was established and later lost
type ResetError struct {
	Err error
}

// Reset marks err so that Retry starts counting attempts again
func Reset(err error) error {
	if err == nil {
		return nil
	}
	return &ResetError{Err: err}
}

func (r *ResetError) Error() string {
	return r.Err.Error()
}

func (r *ResetError) Unwrap() error {
	return r.Err
}
