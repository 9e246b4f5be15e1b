/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"errors"
	"fmt"
)

// NetworkError means no usable answer was obtained from the relay: the request could not be
// sent, timed out, was refused by the circuit breaker, or got a non-2xx status without an error body.
// Deliveries failed this way may be retried.
type NetworkError struct {
	Method     string
	URL        string
	StatusCode int // 0 if no response was received
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	str := fmt.Sprintf("network failure: method: [%s] url: [%s]", e.Method, e.URL)
	if e.StatusCode != 0 {
		str += fmt.Sprintf(" status: [%d]", e.StatusCode)
	}
	if e.Message != "" {
		str += " message: " + e.Message
	}
	if e.Err != nil {
		str += " error: " + e.Err.Error()
	}
	return str
}

// Unwrap returns the next error in the error chain.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RejectionError means the relay answered and refused the message (invalid key, malformed
// envelope, success=false). Resending the same message would not succeed, so it is terminal.
type RejectionError struct {
	Method     string
	URL        string
	StatusCode int
	// Reason is the "error" field of the relay response, if any.
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	str := fmt.Sprintf("rejected by relay: method: [%s] url: [%s] status: [%d]", e.Method, e.URL, e.StatusCode)
	if e.Reason != "" {
		str += " reason: " + e.Reason
	}
	if e.Err != nil {
		str += " error: " + e.Err.Error()
	}
	return str
}

// Unwrap returns the next error in the error chain.
func (e *RejectionError) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether a delivery that failed with err may be attempted again.
func IsRetriable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
