/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package ratelimit

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/consoletext/consoletext-go/message"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TokenBucketTestSuite contains tests for TokenBucket
type TokenBucketTestSuite struct {
	suite.Suite
	clock *fakeClock
}

func TestTokenBucket(t *testing.T) {
	suite.Run(t, new(TokenBucketTestSuite))
}

func (ts *TokenBucketTestSuite) SetupTest() {
	ts.clock = newFakeClock()
}

func (ts *TokenBucketTestSuite) newBucket(capacity int, refillRate float64) *TokenBucket {
	return NewTokenBucketWithOpts(capacity, refillRate, TokenBucketOpts{Clock: ts.clock.Now})
}

func (ts *TokenBucketTestSuite) TestDefaults() {
	b := NewTokenBucket(0)
	st := b.Status()
	ts.Equal(DefaultCapacity, st.Capacity)
	ts.Equal(DefaultCapacity, st.AvailableTokens)
	ts.Equal(time.Duration(0), st.TimeUntilNextToken)
}

func (ts *TokenBucketTestSuite) TestNoRefillDeniesSecondMessage() {
	b := ts.newBucket(1, 0)

	ts.True(b.Consume(CostBySeverity(message.SeverityCritical)))
	ts.False(b.Consume(CostBySeverity(message.SeverityCritical)))
	ts.False(b.CanSend(1))
	ts.Equal(Never, b.TimeUntilNextToken())

	ts.clock.Advance(time.Hour)
	ts.False(b.CanSend(1))
}

func (ts *TokenBucketTestSuite) TestConsumeIsAtomic() {
	b := ts.newBucket(5, 0)

	ts.True(b.Consume(3))
	ts.False(b.Consume(3))
	ts.Equal(2, b.Status().AvailableTokens, "failed consume must not take tokens")
	ts.True(b.Consume(2))
	ts.Equal(0, b.Status().AvailableTokens)
}

func (ts *TokenBucketTestSuite) TestCanSendDoesNotConsume() {
	b := ts.newBucket(3, 0)
	for i := 0; i < 10; i++ {
		ts.True(b.CanSend(3))
	}
	ts.Equal(3, b.Status().AvailableTokens)
}

func (ts *TokenBucketTestSuite) TestRefill() {
	b := ts.newBucket(60, 1)
	ts.True(b.Consume(60))
	ts.False(b.CanSend(1))
	ts.Equal(time.Second, b.TimeUntilNextToken())

	ts.clock.Advance(500 * time.Millisecond)
	ts.False(b.CanSend(1))

	ts.clock.Advance(500 * time.Millisecond)
	ts.True(b.CanSend(1))
	ts.Equal(time.Duration(0), b.TimeUntilNextToken())

	ts.clock.Advance(30 * time.Second)
	ts.Equal(31, b.Status().AvailableTokens)
}

func (ts *TokenBucketTestSuite) TestRefillIsClampedToCapacity() {
	b := ts.newBucket(10, 10)
	ts.True(b.Consume(4))
	ts.clock.Advance(24 * time.Hour)
	ts.Equal(10, b.Status().AvailableTokens)
	ts.False(b.Consume(11))
	ts.True(b.Consume(10))
}

func (ts *TokenBucketTestSuite) TestTimeUntilNextTokenRoundsUp() {
	b := ts.newBucket(3, 3) // one token every ~333.33ms
	ts.True(b.Consume(3))
	ts.Equal(334*time.Millisecond, b.TimeUntilNextToken())
}

func (ts *TokenBucketTestSuite) TestDefaultRefillRate() {
	b := NewTokenBucketWithOpts(60, 1, TokenBucketOpts{Clock: ts.clock.Now})
	def := NewTokenBucket(60)
	ts.True(b.Consume(60))
	ts.True(def.Consume(60))
	ts.Equal(b.TimeUntilNextToken(), def.TimeUntilNextToken())
}

func (ts *TokenBucketTestSuite) TestStatusIsIdempotent() {
	b := ts.newBucket(10, 1)
	ts.True(b.Consume(7))
	first := b.Status()
	second := b.Status()
	ts.Equal(first, second)
	ts.Equal(Status{AvailableTokens: 3, Capacity: 10}, first)
}

func (ts *TokenBucketTestSuite) TestConcurrentConsume() {
	b := ts.newBucket(100, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Consume(1) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	ts.Equal(100, admitted)
}

func TestCostBySeverity(t *testing.T) {
	tests := []struct {
		severity message.Severity
		want     int
	}{
		{message.SeverityCritical, 1},
		{message.SeverityError, 1},
		{message.SeverityWarning, 2},
		{message.SeverityInfo, 3},
		{message.Severity("fatal"), 1},
		{message.Severity(""), 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CostBySeverity(tt.severity), "severity %q", tt.severity)
	}
}

func TestConjunctive(t *testing.T) {
	clock := newFakeClock()
	minute := NewTokenBucketWithOpts(5, 5.0/60, TokenBucketOpts{Clock: clock.Now})
	hour := NewTokenBucketWithOpts(3, 3.0/3600, TokenBucketOpts{Clock: clock.Now})
	limiter := NewConjunctive(minute, nil, hour)

	require.True(t, limiter.Consume(2))
	require.Equal(t, 3, minute.Status().AvailableTokens)
	require.Equal(t, 1, hour.Status().AvailableTokens)

	// The hourly bucket denies, so the minute bucket must be left untouched.
	require.False(t, limiter.CanSend(2))
	require.False(t, limiter.Consume(2))
	require.Equal(t, 3, minute.Status().AvailableTokens)

	st := limiter.Status()
	require.Equal(t, 1, st.AvailableTokens)
	require.Equal(t, 3, st.Capacity)

	require.True(t, limiter.Consume(1))
	require.Equal(t, time.Duration(0), minute.TimeUntilNextToken())
	require.Greater(t, hour.TimeUntilNextToken(), 19*time.Minute)
	require.Equal(t, hour.TimeUntilNextToken(), limiter.TimeUntilNextToken())
}

func TestConjunctiveSnapshotIsConsistent(t *testing.T) {
	clock := newFakeClock()
	wide := NewTokenBucketWithOpts(200, 0, TokenBucketOpts{Clock: clock.Now})
	require.True(t, wide.Consume(100))
	narrow := NewTokenBucketWithOpts(100, 0, TokenBucketOpts{Clock: clock.Now})
	limiter := NewConjunctive(wide, narrow)

	// Both buckets hold the same number of tokens between consumes, so a snapshot
	// always reports the first bucket.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for limiter.Consume(1) {
		}
	}()
	for i := 0; i < 1000; i++ {
		st := limiter.Status()
		require.Equal(t, 200, st.Capacity)
		require.Contains(t, []time.Duration{0, Never}, limiter.TimeUntilNextToken())
	}
	wg.Wait()
	require.Equal(t, Status{AvailableTokens: 0, Capacity: 200, TimeUntilNextToken: Never}, limiter.Status())
}

func TestStatusJSON(t *testing.T) {
	tests := []struct {
		name string
		st   Status
		want string
	}{
		{
			name: "tokens available",
			st:   Status{AvailableTokens: 5, Capacity: 60},
			want: `{"availableTokens": 5, "capacity": 60, "timeUntilNextToken": 0}`,
		},
		{
			name: "milliseconds until next token",
			st:   Status{Capacity: 60, TimeUntilNextToken: 1500 * time.Millisecond},
			want: `{"availableTokens": 0, "capacity": 60, "timeUntilNextToken": 1500}`,
		},
		{
			name: "no refill",
			st:   Status{Capacity: 60, TimeUntilNextToken: Never},
			want: `{"availableTokens": 0, "capacity": 60, "timeUntilNextToken": null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.st)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))

			var decoded Status
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Equal(t, tt.st, decoded)
		})
	}
}
