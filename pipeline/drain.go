/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package pipeline

import (
	"context"

	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/message"
	"github.com/consoletext/consoletext-go/ratelimit"
	"github.com/consoletext/consoletext-go/retry"
	"github.com/consoletext/consoletext-go/transport"
)

// drainCycle delivers queued messages in FIFO order while the limiter admits the head.
// A cycle stops at the first head that can't be admitted (or isn't due yet, when backoff is enforced),
// so messages are never reordered. Only one cycle runs at a time; an overlapping call returns at once.
func (p *Pipeline) drainCycle(ctx context.Context) {
	if p.queue.Len() == 0 {
		return
	}
	if !p.draining.CompareAndSwap(false, true) {
		return
	}
	defer p.draining.Store(false)

	logger := p.log()
	s := p.currentSettings()
	if !s.enabled || s.apiKey == "" {
		return
	}

	delivered := 0
	for ctx.Err() == nil {
		now := p.now()
		head, ok := p.queue.PopHeadIf(func(head *message.Queued) bool {
			if p.enforceBackoff && !head.Due(now) {
				return false
			}
			return p.limiter.Consume(ratelimit.CostBySeverity(head.Severity))
		})
		if !ok {
			if head != nil {
				logger.Debug("queue drain stopped at blocked head",
					log.String("message_id", head.ID), log.Int("delivered", delivered))
			}
			break
		}
		p.metrics.QueueLength(p.queue.Len())
		if p.deliverQueued(ctx, head, logger) {
			delivered++
		}
	}
	p.metrics.QueueLength(p.queue.Len())
}

func (p *Pipeline) deliverQueued(ctx context.Context, q *message.Queued, logger log.FieldLogger) bool {
	logger = logger.With(log.String("message_id", q.ID), log.String("severity", string(q.Severity)))

	resp, err := p.relay.Deliver(ctx, q.Envelope)
	if err == nil {
		logger.Debug("queued message sent", log.String("relay_message_id", resp.MessageID),
			log.Int("retry_count", q.RetryCount))
		p.metrics.MessageOutcome(q.Severity, OutcomeDelivered)
		return true
	}

	if ctx.Err() != nil {
		// The drain was interrupted (Close or an ended Flush), not the relay: the attempt doesn't count.
		logger.Debug("queued message delivery interrupted, kept at queue head", log.Error(err))
		p.restore(q, logger)
		return false
	}

	if !transport.IsRetriable(err) {
		logger.Warn("queued message rejected by relay, dropped", log.Error(err))
		p.metrics.MessageOutcome(q.Severity, OutcomeRejected)
		return false
	}

	s := p.currentSettings()
	schedule := retry.NewLinearBackoffPolicy(s.retryDelay, s.retryAttempts)
	if q.RetryCount >= schedule.MaxAttempts() {
		logger.Warn("queued message dropped after retries", log.Int("retry_count", q.RetryCount), log.Error(err))
		p.metrics.MessageOutcome(q.Severity, OutcomeExhausted)
		return false
	}
	q.RetryCount++
	q.ScheduledAt = p.now().Add(schedule.Delay(q.RetryCount))
	logger.Debug("queued message delivery failed, requeued", log.Error(err),
		log.Int("retry_count", q.RetryCount), log.Time("scheduled_at", q.ScheduledAt))
	p.push(q, OutcomeRequeued, logger)
	return false
}
