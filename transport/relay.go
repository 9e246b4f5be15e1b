/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package transport delivers alert envelopes to the Console.text relay over HTTP
// and classifies failures into retriable network failures and terminal rejections.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/atomic"

	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/message"
)

// DefaultEndpoint is the base URL of the hosted relay.
const DefaultEndpoint = "https://api.console-text.dev"

// MessagesPath is appended to the endpoint to build the delivery URL.
const MessagesPath = "/messages"

// ContentTypeAppJSON is the content type of the delivery request.
const ContentTypeAppJSON = "application/json"

// responses bigger than this are not expected from the relay and are truncated
const maxResponseBodySize = 64 * 1024

// RateLimitInfo is the relay-side quota reported with a response.
type RateLimitInfo struct {
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"resetTime"`
}

// Response is the body the relay answers with.
type Response struct {
	Success       bool           `json:"success"`
	MessageID     string         `json:"messageId,omitempty"`
	Error         string         `json:"error,omitempty"`
	RateLimitInfo *RateLimitInfo `json:"rateLimitInfo,omitempty"`
}

// Deliverer sends an envelope to the relay.
type Deliverer interface {
	Deliver(ctx context.Context, env message.Envelope) (Response, error)
}

// Relay is an HTTP client of the relay. The endpoint and the API key may be changed at any time;
// a request in flight keeps the values it was started with.
type Relay struct {
	client   *http.Client
	endpoint atomic.String
	apiKey   atomic.String
	logger   log.FieldLogger
}

var _ Deliverer = (*Relay)(nil)

// RelayOpts provides options for NewRelayWithOpts.
type RelayOpts struct {
	// Endpoint is the relay base URL. DefaultEndpoint is used if empty.
	Endpoint string

	APIKey string

	// UserAgent is DefaultUserAgent() if empty.
	UserAgent string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	Logger log.FieldLogger

	// Collector receives request durations when metrics are enabled in the config.
	Collector MetricsCollector
}

// NewRelay creates a new Relay.
func NewRelay(cfg *Config, endpoint, apiKey string) (*Relay, error) {
	return NewRelayWithOpts(cfg, RelayOpts{Endpoint: endpoint, APIKey: apiKey})
}

// NewRelayWithOpts creates a new Relay. The HTTP client is built from cfg the same way
// for every relay: logging, metrics, circuit breaker, rate limiting, user agent and auth,
// from the innermost to the outermost round tripper.
func NewRelayWithOpts(cfg *Config, opts RelayOpts) (*Relay, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	r := &Relay{logger: logger}
	r.SetEndpoint(opts.Endpoint)
	r.SetAPIKey(opts.APIKey)

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	if cfg.Logger.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, logger, cfg.Logger.TransportOpts())
	}
	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.Collector)
	}
	if cfg.CircuitBreaker.Enabled {
		cbOpts := cfg.CircuitBreaker.TransportOpts()
		cbOpts.Logger = logger
		delegate = NewCircuitBreakerRoundTripperWithOpts(delegate, cbOpts)
	}
	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts(),
		); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}
	delegate = NewUserAgentRoundTripper(delegate, userAgent)
	delegate = NewAuthBearerRoundTripper(delegate, AuthProviderFunc(func(context.Context) (string, error) {
		return r.apiKey.Load(), nil
	}))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.client = &http.Client{Transport: delegate, Timeout: timeout}
	return r, nil
}

// SetAPIKey replaces the API key used for subsequent deliveries.
func (r *Relay) SetAPIKey(apiKey string) {
	r.apiKey.Store(apiKey)
}

// SetEndpoint replaces the relay base URL used for subsequent deliveries.
// An empty value resets it to DefaultEndpoint.
func (r *Relay) SetEndpoint(endpoint string) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	r.endpoint.Store(strings.TrimRight(endpoint, "/"))
}

// Endpoint returns the current relay base URL.
func (r *Relay) Endpoint() string {
	return r.endpoint.Load()
}

// Deliver posts env to the relay. A nil error means the relay accepted the message.
// Errors are either *NetworkError or *RejectionError, see IsRetriable.
func (r *Relay) Deliver(ctx context.Context, env message.Envelope) (Response, error) {
	url := r.endpoint.Load() + MessagesPath
	body, err := json.Marshal(env)
	if err != nil {
		return Response{}, &RejectionError{Method: http.MethodPost, URL: url, Reason: "marshal envelope", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &RejectionError{Method: http.MethodPost, URL: url, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)

	r.logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sending message to relay", log.String("uri", url), log.String("severity", string(env.Severity)))
	})

	resp, err := r.client.Do(req)
	if err != nil {
		var authErr *AuthBearerRoundTripperError
		if errors.As(err, &authErr) {
			return Response{}, &RejectionError{Method: req.Method, URL: url, Reason: "no credentials", Err: err}
		}
		return Response{}, &NetworkError{Method: req.Method, URL: url, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Warn("failed to close relay response body", log.Error(closeErr))
		}
	}()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{}, &NetworkError{
			Method: req.Method, URL: url, StatusCode: resp.StatusCode, Message: "reading response body", Err: err,
		}
	}
	return classifyResponse(req, resp.StatusCode, buf)
}

func classifyResponse(req *http.Request, statusCode int, body []byte) (Response, error) {
	url := req.URL.String()
	var parsed Response
	parseErr := errEmptyBody
	if len(bytes.TrimSpace(body)) != 0 {
		parseErr = json.Unmarshal(body, &parsed)
	}

	if statusCode < 200 || statusCode >= 300 {
		if parseErr != nil {
			// Nothing the relay itself said; a proxy or the network is the likely culprit.
			return Response{}, &NetworkError{
				Method: req.Method, URL: url, StatusCode: statusCode, Message: "no error payload", Err: parseErr,
			}
		}
		reason := parsed.Error
		if reason == "" {
			reason = http.StatusText(statusCode)
		}
		return parsed, &RejectionError{Method: req.Method, URL: url, StatusCode: statusCode, Reason: reason}
	}

	if parseErr != nil {
		return Response{}, &RejectionError{
			Method: req.Method, URL: url, StatusCode: statusCode, Reason: "unmarshal response", Err: parseErr,
		}
	}
	if !parsed.Success {
		return parsed, &RejectionError{Method: req.Method, URL: url, StatusCode: statusCode, Reason: parsed.Error}
	}
	return parsed, nil
}

var errEmptyBody = errors.New("empty response")
