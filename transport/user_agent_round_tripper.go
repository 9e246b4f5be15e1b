/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"net/http"

	"github.com/consoletext/consoletext-go/internal/libinfo"
)

// DefaultUserAgent returns the User-Agent sent to the relay, e.g. "consoletext-go/v1.2.0".
func DefaultUserAgent() string {
	return libinfo.UserAgent()
}

// UserAgentRoundTripper implements http.RoundTripper interface
// and sets User-Agent HTTP header in all outgoing requests.
type UserAgentRoundTripper struct {
	Delegate  http.RoundTripper
	UserAgent string
	// Append makes the round tripper add its value after an already present User-Agent
	// instead of leaving the existing one untouched.
	Append bool
}

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper that sets User-Agent if it's empty.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	userAgent := req.Header.Get("User-Agent")
	switch {
	case userAgent == "":
		userAgent = rt.UserAgent
	case rt.Append:
		userAgent += " " + rt.UserAgent
	default:
		return rt.Delegate.RoundTrip(req)
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("User-Agent", userAgent)
	return rt.Delegate.RoundTrip(req)
}
