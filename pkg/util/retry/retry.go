// Copyright (C) 2017 ScyllaDB

package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff specifies a policy for how long to wait between retries.
// It is called after a failing attempt to determine the amount of time
// that should pass before trying again.
type Backoff = backoff.BackOff

// Stop indicates that no more retries should be made.
const Stop time.Duration = backoff.Stop

// BackoffFunc type is an adapter to allow the use of ordinary
// functions as Backoff.
type BackoffFunc func() time.Duration

// NextBackOff returns the duration to wait before retrying the operation.
func (b BackoffFunc) NextBackOff() time.Duration {
	return b()
}

// Reset to initial state.
func (b BackoffFunc) Reset() {}

// Clone returns a copy of BackoffFunc.
func (b BackoffFunc) Clone() Backoff {
	return b
}

// NewExponentialBackoff returns Backoff implementation that increases each
// wait period exponentially.
// Multiplier controls how fast each wait period grows, and jitter controls the
// amount of randomness in each wait period.
func NewExponentialBackoff(initialInterval, maxElapsedTime, maxInterval time.Duration, multiplier, jitter float64) Backoff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initialInterval,
		RandomizationFactor: jitter,
		Multiplier:          multiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      maxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// WithMaxRetries allows to set maximum number of retries for given backoff
// strategy.
func WithMaxRetries(b Backoff, maxRetries uint64) Backoff {
	return backoff.WithMaxRetries(b, maxRetries)
}

// Permanent wraps the given err in a *backoff.PermanentError, it would not be
// retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent checks if an error is a permanent error created with Permanent.
func IsPermanent(err error) bool {
	var perr *backoff.PermanentError
	return errors.As(err, &perr)
}

// WithNotify calls notify on failed attempts.
func WithNotify(ctx context.Context, op func() error, b Backoff, n func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), backoff.Notify(n))
}

// Run retries the operation until it does not return error or Backoff stops.
func Run(ctx context.Context, op func() error, b Backoff) error {
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
