/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/consoletext/consoletext-go/log/logtest"
	"github.com/consoletext/consoletext-go/message"
	"github.com/consoletext/consoletext-go/transport"
)

type relayRequest struct {
	Auth string
	Body map[string]interface{}
}

// newRelayServer starts a relay that answers with the given statuses in order and 200 afterwards.
func newRelayServer(t *testing.T, statuses ...int) (*httptest.Server, func() []relayRequest) {
	var mu sync.Mutex
	var reqs []relayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &body))

		mu.Lock()
		reqs = append(reqs, relayRequest{Auth: r.Header.Get("Authorization"), Body: body})
		status := http.StatusOK
		if len(statuses) != 0 {
			status, statuses = statuses[0], statuses[1:]
		}
		mu.Unlock()

		rw.Header().Set("Content-Type", transport.ContentTypeAppJSON)
		switch {
		case status == http.StatusOK:
			_, _ = rw.Write([]byte(`{"success":true,"messageId":"m-1"}`))
		case status >= http.StatusInternalServerError:
			rw.WriteHeader(status) // no body: the relay is unreachable behind a proxy
		default:
			rw.WriteHeader(status)
			_, _ = rw.Write([]byte(`{"success":false,"error":"invalid api key"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []relayRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]relayRequest(nil), reqs...)
	}
}

func TestPipelineOverHTTP(t *testing.T) {
	srv, requests := newRelayServer(t, http.StatusBadGateway, http.StatusUnauthorized)

	cfg := newTestConfig()
	cfg.APIEndpoint = srv.URL
	cfg.RetryDelay = 0
	metrics := NewPrometheusMetricsCollector("test")
	p, err := NewWithOpts(cfg, Opts{Metrics: metrics, FlushPollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	ctx := context.Background()

	// 502 without a body is a network failure: the message is queued for retry.
	require.False(t, p.Critical(ctx, "db is down", map[string]interface{}{"host": "db-1"}))
	require.Equal(t, 1, p.Status().QueueLength)

	// 401 with an error body is a rejection: dropped.
	require.False(t, p.Error(ctx, "bad request", nil))
	require.Equal(t, 1, p.Status().QueueLength)

	require.NoError(t, p.Flush(ctx))
	require.Equal(t, 0, p.Status().QueueLength)

	reqs := requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		require.Equal(t, "Bearer test-key", r.Auth)
	}
	retried := reqs[2].Body
	require.Equal(t, "db is down", retried["message"])
	require.Equal(t, string(message.SeverityCritical), retried["severity"])
	require.Equal(t, DefaultProjectID, retried["projectId"])
	require.Equal(t, "test", retried["environment"])
	require.Equal(t, map[string]interface{}{"host": "db-1"}, retried["metadata"])

	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("critical", string(OutcomeFailed))))
	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("critical", string(OutcomeDelivered))))
	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("error", string(OutcomeRejected))))
	require.Equal(t, 0.0, promtestutil.ToFloat64(metrics.QueueGauge))
}

func TestPipelineAPIKeyUpdateOverHTTP(t *testing.T) {
	srv, requests := newRelayServer(t)

	cfg := newTestConfig()
	cfg.APIEndpoint = srv.URL
	p, err := New(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	ctx := context.Background()

	require.True(t, p.Info(ctx, "first", nil))
	newKey := "rotated-key"
	p.UpdateConfig(Update{APIKey: &newKey})
	require.True(t, p.Info(ctx, "second", nil))

	reqs := requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "Bearer test-key", reqs[0].Auth)
	require.Equal(t, "Bearer rotated-key", reqs[1].Auth)
}

func TestPrometheusMetricsCollectorRegistration(t *testing.T) {
	metrics := NewPrometheusMetricsCollector("registration_test")
	metrics.MustRegister()
	defer metrics.Unregister()

	metrics.MessageOutcome(message.SeverityWarning, OutcomeQueued)
	metrics.QueueLength(4)

	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("warning", "queued")))
	require.Equal(t, 4.0, promtestutil.ToFloat64(metrics.QueueGauge))
	require.Equal(t, 1, promtestutil.CollectAndCount(metrics.Messages))
	require.Panics(t, func() { prometheus.MustRegister(metrics.QueueGauge) })
}

func TestCloseKeepsInFlightQueuedMessage(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	clock := newFakeClock()
	cfg := newTestConfig()
	cfg.APIEndpoint = srv.URL
	cfg.RetryAttempts = 0
	cfg.Queue.DrainInterval = 10 * time.Millisecond
	metrics := &recordingMetrics{}
	logger := logtest.NewRecorder()
	p, err := NewWithOpts(cfg, Opts{Logger: logger, Metrics: metrics, Clock: clock.Now})
	require.NoError(t, err)

	require.True(t, p.limiter.Consume(p.limiter.Status().AvailableTokens))
	require.True(t, p.Info(context.Background(), "disk is 95% full", nil))
	clock.Advance(time.Minute)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "queued message was not picked up by the periodic drain")
	}
	require.NoError(t, p.Close(context.Background()))

	require.Equal(t, 1, p.Status().QueueLength)
	head, _ := p.queue.PopHeadIf(func(*message.Queued) bool { return false })
	require.Equal(t, "disk is 95% full", head.Message)
	require.Zero(t, head.RetryCount)
	require.Zero(t, metrics.count(OutcomeExhausted))
	require.Zero(t, metrics.count(OutcomeRequeued))
	_, found := logger.FindEntry("queued message dropped after retries")
	require.False(t, found)
}

func TestPrometheusMetricsSeverityLabels(t *testing.T) {
	cfg := newTestConfig()
	cfg.Enabled = false
	metrics := NewPrometheusMetricsCollector("labels_test")
	p, err := NewWithOpts(cfg, Opts{Relay: &fakeRelay{}, Metrics: metrics})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	ctx := context.Background()

	require.False(t, p.Send(ctx, "no severity", "", nil))
	require.False(t, p.Send(ctx, "made up", message.Severity("fatal"), nil))
	require.False(t, p.Send(ctx, "made up too", message.Severity("panic"), nil))
	require.False(t, p.Warning(ctx, "known", nil))

	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("info", string(OutcomeDisabled))))
	require.Equal(t, 2.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("unknown", string(OutcomeDisabled))))
	require.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Messages.WithLabelValues("warning", string(OutcomeDisabled))))
	require.Equal(t, 3, promtestutil.CollectAndCount(metrics.Messages))
}
