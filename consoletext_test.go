/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package consoletext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/consoletext/consoletext-go/log/logtest"
	"github.com/consoletext/consoletext-go/pipeline"
)

func newRelay(t *testing.T) (*httptest.Server, *int32) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"success":true,"messageId":"m-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newConfig(endpoint string) *pipeline.Config {
	cfg := pipeline.NewDefaultConfig("test-key")
	cfg.APIEndpoint = endpoint
	cfg.Environment = "test"
	return cfg
}

func TestNotConfigured(t *testing.T) {
	require.NoError(t, Shutdown(context.Background()))
	recorder := logtest.NewRecorder()
	SetLogger(recorder)
	defer SetLogger(nil)
	ctx := context.Background()

	require.Nil(t, Default())
	require.False(t, Critical(ctx, "x", nil))
	require.False(t, Info(ctx, "x", nil))
	_, ok := GetStatus()
	require.False(t, ok)
	require.ErrorIs(t, Flush(ctx), ErrNotConfigured)

	debug := true
	UpdateConfig(pipeline.Update{Debug: &debug})
	ClearQueue()

	entries := recorder.FindAllEntriesByFilter(func(e logtest.RecordedEntry) bool {
		return e.Text == ErrNotConfigured.Error()
	})
	require.Len(t, entries, 4)
	op, found := entries[2].FindField("operation")
	require.True(t, found)
	require.Equal(t, "updateConfig", string(op.Bytes))
}

func TestConfigureAndSend(t *testing.T) {
	srv, calls := newRelay(t)
	require.NoError(t, Configure(newConfig(srv.URL)))
	defer func() { require.NoError(t, Shutdown(context.Background())) }()
	ctx := context.Background()

	require.True(t, Critical(ctx, "db is down", nil))
	require.True(t, Error(ctx, "payment failed", nil))
	require.True(t, Warning(ctx, "disk is 80% full", nil))
	require.True(t, Info(ctx, "deploy finished", map[string]interface{}{"version": "1.2.3"}))
	require.EqualValues(t, 4, atomic.LoadInt32(calls))

	st, ok := GetStatus()
	require.True(t, ok)
	require.Equal(t, "test", st.Environment)
	require.Equal(t, pipeline.DefaultProjectID, st.ProjectID)
	require.True(t, st.Enabled)
	require.Equal(t, pipeline.DefaultRateLimitPerMinute-1-1-2-3, st.RateLimit.AvailableTokens)

	disabled := false
	UpdateConfig(pipeline.Update{Enabled: &disabled})
	require.False(t, Info(ctx, "dropped", nil))
	require.EqualValues(t, 4, atomic.LoadInt32(calls))

	ClearQueue()
	require.NoError(t, Flush(ctx))
}

func TestConfigureReplacesClient(t *testing.T) {
	srv, _ := newRelay(t)
	require.NoError(t, Configure(newConfig(srv.URL)))
	first := Default()

	cfg := newConfig(srv.URL)
	cfg.ProjectID = "billing"
	require.NoError(t, Configure(cfg))
	defer func() { require.NoError(t, Shutdown(context.Background())) }()

	require.NotSame(t, first, Default())
	st, ok := GetStatus()
	require.True(t, ok)
	require.Equal(t, "billing", st.ProjectID)

	// The replaced client is closed.
	require.False(t, first.Info(context.Background(), "x", nil))
}

func TestConfigureInvalidConfigKeepsClient(t *testing.T) {
	srv, _ := newRelay(t)
	require.NoError(t, Configure(newConfig(srv.URL)))
	defer func() { require.NoError(t, Shutdown(context.Background())) }()
	current := Default()

	cfg := newConfig(srv.URL)
	cfg.RateLimitPerMinute = -1
	require.Error(t, Configure(cfg))
	require.Same(t, current, Default())
}

func TestShutdown(t *testing.T) {
	srv, _ := newRelay(t)
	require.NoError(t, Configure(newConfig(srv.URL)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Shutdown(ctx))
	require.Nil(t, Default())
	require.NoError(t, Shutdown(ctx))
}
