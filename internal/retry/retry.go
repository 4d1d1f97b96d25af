// Package retry implements the bounded backoff policy used for provider calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// Default policy values.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsed      = 2 * time.Minute
	DefaultMultiplier      = 2.0
	DefaultJitter          = 0.2
)

// ErrDraining is returned when a retry is abandoned because shutdown began.
var ErrDraining = errors.New("shutting down")

// Policy bounds how often and for how long a failing call is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, the first included.
	MaxAttempts int

	// InitialInterval is the wait after the first failure.
	InitialInterval time.Duration

	// MaxInterval caps a single computed wait. A provider's Retry-After
	// hint is not capped by it.
	MaxInterval time.Duration

	// MaxElapsed caps the sum of all waits. Zero means no cap.
	MaxElapsed time.Duration

	// Multiplier grows the wait after each failure.
	Multiplier float64

	// Jitter randomizes each wait by up to this fraction.
	Jitter float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsed:      DefaultMaxElapsed,
		Multiplier:      DefaultMultiplier,
		Jitter:          DefaultJitter,
	}
}

// Validate checks the policy for values the backoff cannot work with.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	case p.InitialInterval <= 0:
		return fmt.Errorf("initial_interval must be positive, got %s", p.InitialInterval)
	case p.MaxInterval < p.InitialInterval:
		return fmt.Errorf("max_interval (%s) must not be below initial_interval (%s)", p.MaxInterval, p.InitialInterval)
	case p.MaxElapsed < 0:
		return fmt.Errorf("max_elapsed must not be negative, got %s", p.MaxElapsed)
	case p.Multiplier < 1:
		return fmt.Errorf("multiplier must be at least 1, got %g", p.Multiplier)
	case p.Jitter < 0 || p.Jitter >= 1:
		return fmt.Errorf("jitter must be in [0, 1), got %g", p.Jitter)
	}
	return nil
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	// The total wait is capped by Do, which also counts Retry-After hints.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ExhaustedError is returned when a retryable error persists past the
// attempt or wait limit.
type ExhaustedError struct {
	Attempts int
	Waited   time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts (waited %s): %v", e.Attempts, e.Waited.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type options struct {
	retryable func(error) bool
	notify    func(attempt int, err error, wait time.Duration)
	sleep     func(ctx context.Context, d time.Duration) error
	draining  func() bool
}

// Option customizes a single Do call.
type Option func(*options)

// WithRetryable replaces the default classification, provider.IsRetryable.
func WithRetryable(fn func(error) bool) Option {
	return func(o *options) { o.retryable = fn }
}

// WithNotify is called before each wait.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithDraining stops retrying once fn reports true. An attempt already
// running is never interrupted.
func WithDraining(fn func() bool) Option {
	return func(o *options) { o.draining = fn }
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// policy runs out. It returns the number of attempts made.
//
// A rate limited error carrying a Retry-After hint waits exactly that long
// instead of the computed backoff.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) (int, error) {
	o := options{
		retryable: provider.IsRetryable,
		sleep:     sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := p.backOff()
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !o.retryable(err) {
			return attempt, err
		}
		if attempt >= maxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt, Waited: waited, Err: err}
		}

		wait := b.NextBackOff()
		if hint := provider.RetryAfter(err); hint > 0 {
			wait = hint
		}
		if wait == backoff.Stop || (p.MaxElapsed > 0 && waited+wait > p.MaxElapsed) {
			return attempt, &ExhaustedError{Attempts: attempt, Waited: waited, Err: err}
		}
		if o.draining != nil && o.draining() {
			return attempt, fmt.Errorf("%w: %w", ErrDraining, err)
		}

		if o.notify != nil {
			o.notify(attempt, err, wait)
		}
		if serr := o.sleep(ctx, wait); serr != nil {
			return attempt, fmt.Errorf("%w (last error: %w)", serr, err)
		}
		waited += wait

		if o.draining != nil && o.draining() {
			return attempt, fmt.Errorf("%w: %w", ErrDraining, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
