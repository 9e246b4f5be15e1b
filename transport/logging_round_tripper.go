/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"net/http"
	"time"

	"github.com/consoletext/consoletext-go/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests to the relay.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	Logger log.FieldLogger

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Mode of logging: none, all, failed. "all" is used by default.
	Mode LoggingMode

	// SlowRequestThreshold makes requests faster than it go unlogged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, logger log.FieldLogger) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, logger, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, logger log.FieldLogger, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, Logger: logger, Opts: opts}
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone || rt.Logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)
	if elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	switch {
	case err != nil:
		rt.Logger.Error("relay request failed", append(fields, log.Error(err))...)
	case failed:
		rt.Logger.Warn("relay request returned error status", fields...)
	default:
		rt.Logger.Info("relay request done", fields...)
	}
	return resp, err
}
