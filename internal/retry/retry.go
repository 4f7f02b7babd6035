package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"subforge/internal/services"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMultiplier   = 2.0
)

// ErrExhausted marks an operation that failed retryably on every attempt.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	// MaxDelay caps a single backoff delay. Zero disables the cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns three attempts with 1s, 2s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		Multiplier:   defaultMultiplier,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	scaled := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if scaled > math.MaxInt64 {
		scaled = math.MaxInt64
	}
	delay := time.Duration(scaled)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Failure describes a failed attempt that is about to be retried.
type Failure struct {
	Operation   string
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Message renders the failure the way task logs record it.
func (f Failure) Message() string {
	return fmt.Sprintf("%s attempt %d/%d failed, retrying in %dms: %v",
		f.Operation, f.Attempt, f.MaxAttempts, f.Delay.Milliseconds(), f.Err)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type settings struct {
	onRetry   func(Failure)
	sleep     Sleeper
	retryable func(error) bool
}

// Option customizes a single Do call.
type Option func(*settings)

// OnRetry registers a hook invoked before each backoff sleep.
func OnRetry(fn func(Failure)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(sleep Sleeper) Option {
	return func(s *settings) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithClassifier overrides which errors are retried. The default is
// services.Retryable.
func WithClassifier(fn func(error) bool) Option {
	return func(s *settings) {
		if fn != nil {
			s.retryable = fn
		}
	}
}

// Do runs op until it succeeds, fails permanently, or the policy runs out of
// attempts. No sleep follows the final attempt.
func Do[T any](ctx context.Context, policy Policy, name string, op func(context.Context) (T, error), opts ...Option) (T, error) {
	s := settings{sleep: Sleep, retryable: services.Retryable}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	var zero T
	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, aborted(name, err)
		}
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, services.ErrCanceled) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, aborted(name, ctxErr)
		}
		if !s.retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := policy.Delay(attempt)
		if s.onRetry != nil {
			s.onRetry(Failure{
				Operation:   name,
				Attempt:     attempt,
				MaxAttempts: attempts,
				Delay:       delay,
				Err:         err,
			})
		}
		if err := s.sleep(ctx, delay); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return zero, aborted(name, err)
		}
	}
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempts, lastErr)
}

// Sleep waits for d using a timer, returning early with ctx.Err() when ctx
// is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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

func aborted(name string, err error) error {
	switch {
	case errors.Is(err, services.ErrCanceled):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", name, services.ErrCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", name, services.ErrTimeout, err)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}
