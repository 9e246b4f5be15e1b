/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/consoletext/consoletext-go/log"
)

// Default parameter values for CircuitBreakerRoundTripper.
const (
	DefaultCircuitBreakerFailureThreshold = 5
	DefaultCircuitBreakerResetTimeout     = 30 * time.Second
)

// CircuitBreakerRoundTripperOpts represents an options for CircuitBreakerRoundTripper.
type CircuitBreakerRoundTripperOpts struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before letting a probe request through.
	ResetTimeout time.Duration
	Logger       log.FieldLogger
}

// CircuitBreakerRoundTripper stops calling the relay after a series of failures.
// Transport errors and 5xx responses count as failures. While the breaker is open,
// requests fail immediately with an error wrapping gobreaker.ErrOpenState.
type CircuitBreakerRoundTripper struct {
	Delegate http.RoundTripper
	breaker  *gobreaker.CircuitBreaker
}

// NewCircuitBreakerRoundTripper creates a new CircuitBreakerRoundTripper with default options.
func NewCircuitBreakerRoundTripper(delegate http.RoundTripper) *CircuitBreakerRoundTripper {
	return NewCircuitBreakerRoundTripperWithOpts(delegate, CircuitBreakerRoundTripperOpts{})
}

// NewCircuitBreakerRoundTripperWithOpts creates a new CircuitBreakerRoundTripper with options.
func NewCircuitBreakerRoundTripperWithOpts(
	delegate http.RoundTripper, opts CircuitBreakerRoundTripperOpts,
) *CircuitBreakerRoundTripper {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultCircuitBreakerFailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultCircuitBreakerResetTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay",
		MaxRequests: 1,
		Timeout:     opts.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(opts.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("relay circuit breaker state changed",
				log.String("breaker", name), log.String("from", from.String()), log.String("to", to.String()))
		},
	})
	return &CircuitBreakerRoundTripper{Delegate: delegate, breaker: breaker}
}

// State returns the current state of the breaker.
func (rt *CircuitBreakerRoundTripper) State() gobreaker.State {
	return rt.breaker.State()
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *CircuitBreakerRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := rt.breaker.Execute(func() (interface{}, error) {
		var rtErr error
		resp, rtErr = rt.Delegate.RoundTrip(r)
		if rtErr != nil {
			return nil, rtErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errServerStatus
		}
		return nil, nil
	})
	switch {
	case errors.Is(err, errServerStatus):
		// The response itself is fine to hand back; it only counts as a failure for the breaker.
		return resp, nil
	case err != nil:
		if resp == nil && r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &CircuitBreakerError{Inner: err}
	}
	return resp, nil
}

var errServerStatus = errors.New("server error status")

// CircuitBreakerError is returned in RoundTrip method of CircuitBreakerRoundTripper when the request
// was not sent because the breaker is open, or failed with a transport error.
type CircuitBreakerError struct {
	Inner error
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *CircuitBreakerError) Unwrap() error {
	return e.Inner
}
