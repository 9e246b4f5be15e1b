/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package retry provides backoff policies for redelivering alert messages
// and a helper to run an operation until it succeeds or the policy gives up.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// Schedule computes the delay before the given retry attempt (1-based).
// It's used by callers that keep retry state on the retried item itself
// instead of holding a live backoff.BackOff.
type Schedule interface {
	Delay(attempt int) time.Duration
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify receives every failed attempt with its error and the next delay (can be nil).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	op := func() error {
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// PolicyFunc is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ConstantBackoffPolicy means repeat up to max times with constant interval delays.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempt count.
// Zero maxRetryAttempts means no limit.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// Delay implements retry.Schedule.
func (p ConstantBackoffPolicy) Delay(int) time.Duration {
	return p.interval
}

// LinearBackoffPolicy waits interval*n before the n-th retry attempt.
type LinearBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewLinearBackoffPolicy returns a linear backoff policy with given base interval and max retry attempt count.
// Zero maxRetryAttempts means no limit.
func NewLinearBackoffPolicy(interval time.Duration, maxRetryAttempts int) LinearBackoffPolicy {
	return LinearBackoffPolicy{interval, maxRetryAttempts}
}

// MaxAttempts returns the retry budget of the policy.
func (p LinearBackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Delay implements retry.Schedule.
func (p LinearBackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.interval * time.Duration(attempt)
}

// NewBackOff implements retry.Policy.
func (p LinearBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = &linearBackOff{policy: p}
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

type linearBackOff struct {
	policy  LinearBackoffPolicy
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.policy.Delay(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
