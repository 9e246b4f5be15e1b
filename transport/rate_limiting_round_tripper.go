/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 5 * time.Second
)

// RateLimitRemainingHeader is the relay response header with the number of requests left in the current window.
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	// Adaptive makes the limiter slow down to one request per second
	// while the relay reports that no requests are left (RateLimitRemainingHeader is "0").
	Adaptive bool
}

// RateLimitingRoundTripper caps the number of requests per second sent to the relay.
// This is an HTTP-level guard independent from the severity-weighted token bucket of the pipeline.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	rateLimiter *rate.Limiter

	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
	Adaptive    bool
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit (requests per second).
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified rate limit and options.
// For options that are not presented, the default values will be used.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
		Adaptive:    opts.Adaptive,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer cancel()

	if err := rt.rateLimiter.Wait(ctx); err != nil && !errors.Is(r.Context().Err(), context.Canceled) {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.Adaptive {
		rt.adapt(resp)
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) adapt(resp *http.Response) {
	newLimit := rate.Limit(rt.RateLimit)
	if remaining, err := strconv.Atoi(resp.Header.Get(RateLimitRemainingHeader)); err == nil && remaining == 0 {
		newLimit = 1
	}
	if rt.rateLimiter.Limit() != newLimit {
		rt.rateLimiter.SetLimit(newLimit)
	}
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper
// when no request slot became free within WaitTimeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
