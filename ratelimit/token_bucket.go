/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Default parameter values for TokenBucket.
const (
	DefaultCapacity = 60
)

// Never is returned by TimeUntilNextToken when the bucket does not refill.
const Never = time.Duration(math.MaxInt64)

// TokenBucket is a token bucket refilled continuously at a fixed rate.
// Accounting is lazy: tokens are added on every call from the time elapsed since the
// previous one, so no background timer is needed. It is safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time
}

var _ Limiter = (*TokenBucket)(nil)

// TokenBucketOpts represents options for TokenBucket.
type TokenBucketOpts struct {
	// Clock returns the current time. time.Now is used by default.
	Clock func() time.Time
}

// NewTokenBucket creates a full bucket that refills completely within a minute
// (capacity/60 tokens per second). Non-positive capacity means DefaultCapacity.
func NewTokenBucket(capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return NewTokenBucketWithOpts(capacity, float64(capacity)/60, TokenBucketOpts{})
}

// NewTokenBucketWithOpts creates a full bucket refilled with refillRate tokens per second.
// A refillRate of zero (or below) gives a bucket that never refills.
func NewTokenBucketWithOpts(capacity int, refillRate float64, opts TokenBucketOpts) *TokenBucket {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillRate < 0 {
		refillRate = 0
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		tokens:     float64(capacity),
		lastRefill: now(),
		capacity:   float64(capacity),
		refillRate: refillRate,
		now:        now,
	}
}

// CanSend reports whether cost tokens are available. It doesn't consume them.
func (b *TokenBucket) CanSend(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens >= float64(cost)
}

// Consume takes cost tokens if available and reports whether it did.
// The bucket is left untouched when there are not enough tokens.
func (b *TokenBucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < float64(cost) {
		return false
	}
	b.tokens -= float64(cost)
	return true
}

// TimeUntilNextToken returns 0 if at least one token is available, otherwise the time
// one whole token takes to refill. Partial progress toward the next token is not accounted for.
func (b *TokenBucket) TimeUntilNextToken() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.timeUntilNextToken()
}

// Status returns a snapshot of the bucket.
func (b *TokenBucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return Status{
		AvailableTokens:    int(math.Floor(b.tokens)),
		Capacity:           int(b.capacity),
		TimeUntilNextToken: b.timeUntilNextToken(),
	}
}

func (b *TokenBucket) timeUntilNextToken() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	if b.refillRate <= 0 {
		return Never
	}
	return time.Duration(math.Ceil(1000/b.refillRate)) * time.Millisecond
}

// refill must be called with mu held before any read or write of tokens.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}
