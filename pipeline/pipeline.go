/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package pipeline implements the client send pipeline: messages are admitted by a
// severity-weighted token bucket, delivered to the relay, and queued for a periodic
// drain when they are throttled or when delivery fails with a network error.
//
// Urgent messages (critical and error) are never held back by the limiter. Send
// never returns an error: its boolean means "delivered or accepted for later delivery".
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/message"
	"github.com/consoletext/consoletext-go/ratelimit"
	"github.com/consoletext/consoletext-go/retry"
	"github.com/consoletext/consoletext-go/service"
	"github.com/consoletext/consoletext-go/transport"
)

// ErrMissingAPIKey means the pipeline has no credential and will not send anything.
var ErrMissingAPIKey = errors.New("api key is not configured")

// ErrClosed is returned by operations on a closed pipeline.
var ErrClosed = errors.New("pipeline is closed")

const defaultFlushPollInterval = 200 * time.Millisecond

// Relay is the delivery side of the pipeline. *transport.Relay implements it.
type Relay interface {
	transport.Deliverer
	SetAPIKey(apiKey string)
	SetEndpoint(endpoint string)
}

// Opts contains optional parameters for constructing Pipeline.
type Opts struct {
	Logger log.FieldLogger

	// Relay replaces the HTTP relay built from Config.Transport.
	Relay Relay

	// Metrics collects pipeline metrics. Nothing is collected if nil.
	Metrics MetricsCollector

	// TransportMetrics collects relay request durations when Config.Transport.Metrics is enabled.
	TransportMetrics transport.MetricsCollector

	// Clock returns the current time. time.Now is used by default.
	Clock func() time.Time

	// FlushPollInterval is the pause between drain cycles in Flush.
	FlushPollInterval time.Duration
}

// settings is the part of the configuration that may be changed with UpdateConfig.
type settings struct {
	apiKey        string
	projectID     string
	environment   string
	enabled       bool
	debug         bool
	retryAttempts int
	retryDelay    time.Duration
}

// Pipeline sends alert messages to the relay. It's safe for concurrent use.
type Pipeline struct {
	mu       sync.RWMutex
	settings settings

	limiter        ratelimit.Limiter
	queue          *retryQueue
	relay          Relay
	enforceBackoff bool

	logger  log.FieldLogger
	metrics MetricsCollector
	now     func() time.Time

	draining          atomic.Bool
	closed            atomic.Bool
	drainUnit         *service.WorkerUnit
	flushPollInterval time.Duration
}

// Status is a snapshot of the pipeline.
type Status struct {
	QueueLength int              `json:"queueLength"`
	RateLimit   ratelimit.Status `json:"rateLimitStatus"`
	Enabled     bool             `json:"isEnabled"`
	Environment string           `json:"environment"`
	ProjectID   string           `json:"projectId"`
}

// Update holds the configuration values to change. Nil fields are left as they are.
type Update struct {
	APIKey        *string
	APIEndpoint   *string
	ProjectID     *string
	Environment   *string
	Enabled       *bool
	Debug         *bool
	RetryAttempts *int
	RetryDelay    *time.Duration
}

// New creates a pipeline and starts its drain worker.
func New(cfg *Config) (*Pipeline, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates a pipeline with options and starts its drain worker.
// Only an invalid configuration is an error; a missing API key is not.
func NewWithOpts(cfg *Config, opts Opts) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = disabledMetrics{}
	}

	relay := opts.Relay
	if relay == nil {
		var err error
		if relay, err = transport.NewRelayWithOpts(&cfg.Transport, transport.RelayOpts{
			Endpoint:  cfg.APIEndpoint,
			APIKey:    cfg.APIKey,
			Logger:    logger,
			Collector: opts.TransportMetrics,
		}); err != nil {
			return nil, fmt.Errorf("create relay: %w", err)
		}
	}

	flushPollInterval := opts.FlushPollInterval
	if flushPollInterval <= 0 {
		flushPollInterval = defaultFlushPollInterval
	}

	p := &Pipeline{
		settings: settings{
			apiKey:        cfg.APIKey,
			projectID:     cfg.ProjectID,
			environment:   cfg.Environment,
			enabled:       cfg.Enabled,
			debug:         cfg.Debug,
			retryAttempts: cfg.RetryAttempts,
			retryDelay:    cfg.RetryDelay,
		},
		limiter:           newLimiter(cfg, now),
		queue:             newRetryQueue(cfg.Queue.MaxSize, cfg.Queue.OverflowPolicy),
		relay:             relay,
		enforceBackoff:    cfg.Queue.EnforceBackoff,
		logger:            logger,
		metrics:           metrics,
		now:               now,
		flushPollInterval: flushPollInterval,
	}
	p.startDrainWorker(cfg.Queue.DrainInterval)
	return p, nil
}

func newLimiter(cfg *Config, now func() time.Time) ratelimit.Limiter {
	perMinute := ratelimit.NewTokenBucketWithOpts(
		cfg.RateLimitPerMinute, float64(cfg.RateLimitPerMinute)/60, ratelimit.TokenBucketOpts{Clock: now})
	if !cfg.EnforceHourlyLimit {
		return perMinute
	}
	perHour := ratelimit.NewTokenBucketWithOpts(
		cfg.RateLimitPerHour, float64(cfg.RateLimitPerHour)/3600, ratelimit.TokenBucketOpts{Clock: now})
	return ratelimit.NewConjunctive(perMinute, perHour)
}

func (p *Pipeline) startDrainWorker(interval time.Duration) {
	worker := service.NewPeriodicWorker(service.WorkerFunc(func(ctx context.Context) error {
		p.drainCycle(ctx)
		return nil
	}), interval, p.logger)
	p.drainUnit = service.NewWorkerUnit(worker)
	fatalErr := make(chan error, 1)
	go p.drainUnit.Start(fatalErr)
}

func (p *Pipeline) currentSettings() settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// log returns the logger for the current debug setting: debug entries are only emitted in debug mode.
func (p *Pipeline) log() log.FieldLogger {
	if p.currentSettings().debug {
		return p.logger
	}
	return p.logger.WithLevel(log.LevelInfo)
}

// Send delivers text with the given severity, or queues it. It returns true if the message
// was delivered or accepted for later delivery, false if it was refused or failed.
//
// A throttled critical or error message is delivered right away regardless of the limiter;
// other throttled messages are queued. A delivery that fails with a network error is queued
// for retry (Send still returns false); a message rejected by the relay is dropped.
func (p *Pipeline) Send(ctx context.Context, text string, severity message.Severity, metadata map[string]interface{}) bool {
	if severity == "" {
		severity = message.SeverityInfo
	}
	logger := p.log()
	s := p.currentSettings()
	if !s.enabled || p.closed.Load() {
		logger.Debug("pipeline is disabled, message is not sent")
		p.metrics.MessageOutcome(severity, OutcomeDisabled)
		return false
	}
	if s.apiKey == "" {
		logger.Warn("message is not sent", log.Error(ErrMissingAPIKey))
		return false
	}

	env, err := message.NewEnvelope(text, severity, metadata,
		message.Tags{ProjectID: s.projectID, Environment: s.environment}, p.now())
	if err != nil {
		logger.Warn("message is not sent", log.Error(err))
		return false
	}

	cost := ratelimit.CostBySeverity(env.Severity)
	if !p.limiter.CanSend(cost) {
		logger.Debug("rate limit exceeded", log.String("severity", string(env.Severity)), log.Int("cost", cost))
		if env.Severity.IsUrgent() {
			return p.deliverNow(ctx, env, logger)
		}
		return p.enqueue(env, logger)
	}
	if p.limiter.Consume(cost) {
		return p.deliverNow(ctx, env, logger)
	}
	// Tokens were taken by a concurrent sender between the check and the consume.
	return p.enqueue(env, logger)
}

// Critical sends a critical message.
func (p *Pipeline) Critical(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return p.Send(ctx, text, message.SeverityCritical, metadata)
}

// Error sends an error message.
func (p *Pipeline) Error(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return p.Send(ctx, text, message.SeverityError, metadata)
}

// Warning sends a warning message.
func (p *Pipeline) Warning(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return p.Send(ctx, text, message.SeverityWarning, metadata)
}

// Info sends an info message.
func (p *Pipeline) Info(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return p.Send(ctx, text, message.SeverityInfo, metadata)
}

func (p *Pipeline) deliverNow(ctx context.Context, env message.Envelope, logger log.FieldLogger) bool {
	resp, err := p.relay.Deliver(ctx, env)
	if err == nil {
		logger.Debug("message sent", log.String("message_id", resp.MessageID),
			log.String("severity", string(env.Severity)))
		p.metrics.MessageOutcome(env.Severity, OutcomeDelivered)
		return true
	}
	if transport.IsRetriable(err) {
		logger.Debug("message delivery failed, queued for retry", log.Error(err))
		p.metrics.MessageOutcome(env.Severity, OutcomeFailed)
		p.enqueue(env, logger)
		return false
	}
	logger.Debug("message rejected by relay", log.Error(err))
	p.metrics.MessageOutcome(env.Severity, OutcomeRejected)
	return false
}

func (p *Pipeline) enqueue(env message.Envelope, logger log.FieldLogger) bool {
	return p.push(message.NewQueued(env, p.now()), OutcomeQueued, logger)
}

// push appends q to the queue. It returns false if q itself was dropped by the overflow policy.
func (p *Pipeline) push(q *message.Queued, outcome Outcome, logger log.FieldLogger) bool {
	dropped := p.queue.Push(q)
	if dropped != nil {
		p.overflow(dropped, logger)
	}
	p.metrics.QueueLength(p.queue.Len())
	if dropped == q {
		return false
	}
	logger.Debug("message queued", log.String("message_id", q.ID), log.Int("retry_count", q.RetryCount))
	p.metrics.MessageOutcome(q.Severity, outcome)
	return true
}

// restore puts a popped message back at the head of the queue unchanged.
func (p *Pipeline) restore(q *message.Queued, logger log.FieldLogger) {
	if dropped := p.queue.PushFront(q); dropped != nil {
		p.overflow(dropped, logger)
	}
	p.metrics.QueueLength(p.queue.Len())
}

func (p *Pipeline) overflow(dropped *message.Queued, logger log.FieldLogger) {
	logger.Warn("retry queue is full, message dropped",
		log.String("message_id", dropped.ID), log.String("severity", string(dropped.Severity)))
	p.metrics.MessageOutcome(dropped.Severity, OutcomeOverflow)
}

// Status returns a snapshot of the pipeline. Apart from the passive token refill, it changes nothing.
func (p *Pipeline) Status() Status {
	s := p.currentSettings()
	return Status{
		QueueLength: p.queue.Len(),
		RateLimit:   p.limiter.Status(),
		Enabled:     s.enabled,
		Environment: s.environment,
		ProjectID:   s.projectID,
	}
}

// ClearQueue drops all queued messages.
func (p *Pipeline) ClearQueue() {
	n := p.queue.Clear()
	p.metrics.QueueLength(0)
	p.log().Debug("message queue cleared", log.Int("dropped", n))
}

// UpdateConfig applies the non-nil fields of u. A new API key or endpoint is used by
// deliveries started afterwards. The limiter and the queue settings are not changed.
func (p *Pipeline) UpdateConfig(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.APIKey != nil {
		p.settings.apiKey = *u.APIKey
		p.relay.SetAPIKey(*u.APIKey)
	}
	if u.APIEndpoint != nil {
		p.relay.SetEndpoint(*u.APIEndpoint)
	}
	if u.ProjectID != nil {
		p.settings.projectID = *u.ProjectID
	}
	if u.Environment != nil {
		p.settings.environment = *u.Environment
	}
	if u.Enabled != nil {
		p.settings.enabled = *u.Enabled
	}
	if u.Debug != nil {
		p.settings.debug = *u.Debug
	}
	if u.RetryAttempts != nil && *u.RetryAttempts >= 0 {
		p.settings.retryAttempts = *u.RetryAttempts
	}
	if u.RetryDelay != nil && *u.RetryDelay >= 0 {
		p.settings.retryDelay = *u.RetryDelay
	}
}

// Flush runs drain cycles until the queue is empty or ctx is done.
// Queued messages still wait for tokens and for their retry time.
func (p *Pipeline) Flush(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	policy := retry.NewConstantBackoffPolicy(p.flushPollInterval, 0)
	return retry.DoWithRetry(ctx, policy, nil, nil, func(ctx context.Context) error {
		p.drainCycle(ctx)
		if n := p.queue.Len(); n != 0 {
			return fmt.Errorf("%d messages are still queued", n)
		}
		return nil
	})
}

// Close stops the drain worker and waits for a running drain cycle to finish, or for ctx to be done.
// Queued messages are kept (see Flush); Send returns false afterwards.
func (p *Pipeline) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- p.drainUnit.Stop(true)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
