// Package retry runs remote operations with bounded attempts and
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults match the polling client: three attempts, one second initial delay
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// ErrExhausted is joined to the last operation error once every attempt failed
var ErrExhausted = errors.New("retries exhausted")

// permanentError stops Do from retrying
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// as is, without ErrExhausted.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Operation is a single remote call
type Operation[T any] func(ctx context.Context) (T, error)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options controls the retry policy
type Options struct {
	Attempts int
	Delay    time.Duration
	// OnRetry is called after a failed attempt that will be retried
	OnRetry func(attempt int, delay time.Duration, err error)
	Sleep   SleepFunc
}

// Option mutates Options
type Option func(*Options)

// WithAttempts sets the maximum number of attempts
func WithAttempts(n int) Option {
	return func(o *Options) { o.Attempts = n }
}

// WithDelay sets the delay before the second attempt
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithOnRetry registers a hook invoked before each backoff
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *Options) { o.OnRetry = fn }
}

// WithSleep replaces the backoff sleep, mainly for tests
func WithSleep(fn SleepFunc) Option {
	return func(o *Options) { o.Sleep = fn }
}

func buildOptions(opts []Option) Options {
	o := Options{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		Sleep:    sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

// Do invokes op until it succeeds or the attempts run out. The delay doubles
// after every failure and there is no jitter. Errors marked with Permanent
// end the loop at once. Otherwise the final error wraps both ErrExhausted
// and the cause.
func Do[T any](ctx context.Context, op Operation[T], opts ...Option) (T, error) {
	o := buildOptions(opts)

	var zero T
	delay := o.Delay
	var lastErr error

	for attempt := 1; attempt <= o.Attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == o.Attempts {
			break
		}
		if o.OnRetry != nil {
			o.OnRetry(attempt, delay, err)
		}
		if err := o.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("waiting to retry: %w", errors.Join(err, lastErr))
		}
		delay *= 2
	}

	return zero, fmt.Errorf("after %d attempts: %w", o.Attempts, errors.Join(ErrExhausted, lastErr))
}

// Run is Do for operations without a result
func Run(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// WorstCase returns the total backoff time spent when every attempt fails
func WorstCase(opts ...Option) time.Duration {
	o := buildOptions(opts)
	var total time.Duration
	delay := o.Delay
	for i := 1; i < o.Attempts; i++ {
		total += delay
		delay *= 2
	}
	return total
}

func sleep(ctx context.Context, d time.Duration) error {
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
