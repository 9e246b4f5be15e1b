/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/consoletext/consoletext-go/internal/libinfo"
	"github.com/consoletext/consoletext-go/message"
)

// Outcome is what happened to a message at one step of the pipeline.
type Outcome string

// Message outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"    // network failure of an immediate delivery
	OutcomeExhausted Outcome = "exhausted" // dropped after the last retry
	OutcomeOverflow  Outcome = "overflow"  // dropped because the queue is full
	OutcomeDisabled  Outcome = "disabled"
)

// MetricsCollector is an interface for collecting pipeline metrics.
type MetricsCollector interface {
	MessageOutcome(severity message.Severity, outcome Outcome)
	QueueLength(n int)
}

// PrometheusMetricsCollector is a Prometheus metrics collector.
type PrometheusMetricsCollector struct {
	Messages   *prometheus.CounterVec
	QueueGauge prometheus.Gauge
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	constLabels := libinfo.AddPrometheusLibVersionLabel(nil)
	return &PrometheusMetricsCollector{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_total",
			Help:        "Number of alert messages by severity and outcome.",
			ConstLabels: constLabels,
		}, []string{"severity", "outcome"}),
		QueueGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_length",
			Help:        "Number of messages waiting in the retry queue.",
			ConstLabels: constLabels,
		}),
	}
}

// MustRegister registers the Prometheus metrics.
func (c *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Messages, c.QueueGauge)
}

// Unregister the Prometheus metrics.
func (c *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(c.Messages)
	prometheus.Unregister(c.QueueGauge)
}

// MessageOutcome counts one message outcome.
func (c *PrometheusMetricsCollector) MessageOutcome(severity message.Severity, outcome Outcome) {
	c.Messages.WithLabelValues(severityLabel(severity), string(outcome)).Inc()
}

// severityLabel keeps the label set bounded: severities outside the known ones are counted as "unknown".
func severityLabel(severity message.Severity) string {
	if severity == "" {
		return string(message.SeverityInfo)
	}
	for _, known := range message.Severities {
		if severity == known {
			return string(severity)
		}
	}
	return "unknown"
}

// QueueLength sets the current queue length.
func (c *PrometheusMetricsCollector) QueueLength(n int) {
	c.QueueGauge.Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) MessageOutcome(message.Severity, Outcome) {}
func (disabledMetrics) QueueLength(int)                          {}
