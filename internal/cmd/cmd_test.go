/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consoletext/consoletext-go/internal/libinfo"
	"github.com/consoletext/consoletext-go/pipeline"
)

type relayStub struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]interface{}
	status int
}

func newRelayStub(t *testing.T, status int) *relayStub {
	rs := &relayStub{status: status}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, body)
		rs.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(rs.status)
		if rs.status == http.StatusOK {
			_, _ = rw.Write([]byte(`{"success":true,"messageId":"m-1"}`))
			return
		}
		_, _ = rw.Write([]byte(`{"success":false,"error":"invalid api key"}`))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCommand(args ...string) (stdout string, err error) {
	var out, errOut bytes.Buffer
	rootCmd := NewRootCommand(&out, &errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	relay := newRelayStub(t, http.StatusOK)
	cfgPath := writeConfig(t, `
apiKey: secret
apiEndpoint: `+relay.URL+`
projectId: billing
environment: production
log:
  level: error
`)

	out, err := runCommand("send", "--config", cfgPath, "--severity", "critical",
		"--meta", "host=db-1", "--meta", "region=eu", "database", "is", "down")
	require.NoError(t, err)
	require.Equal(t, "sent\n", out)

	require.Len(t, relay.bodies, 1)
	body := relay.bodies[0]
	require.Equal(t, "database is down", body["message"])
	require.Equal(t, "critical", body["severity"])
	require.Equal(t, "billing", body["projectId"])
	require.Equal(t, "production", body["environment"])
	require.Equal(t, map[string]interface{}{"host": "db-1", "region": "eu"}, body["metadata"])
}

func TestSendCommandRejected(t *testing.T) {
	relay := newRelayStub(t, http.StatusUnauthorized)
	cfgPath := writeConfig(t, "apiKey: wrong\napiEndpoint: "+relay.URL+"\nlog:\n  level: error\n")

	_, err := runCommand("send", "--config", cfgPath, "hello")
	require.ErrorContains(t, err, "rejected")
}

func TestSendCommandErrors(t *testing.T) {
	cfgPath := writeConfig(t, "apiKey: secret\nlog:\n  level: error\n")
	noKeyPath := writeConfig(t, "log:\n  level: error\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing api key",
			args:    []string{"send", "--config", noKeyPath, "hello"},
			wantErr: pipeline.ErrMissingAPIKey.Error(),
		},
		{
			name:    "unknown severity",
			args:    []string{"send", "--config", cfgPath, "--severity", "fatal", "hello"},
			wantErr: `unknown severity "fatal"`,
		},
		{
			name:    "invalid metadata",
			args:    []string{"send", "--config", cfgPath, "--meta", "novalue", "hello"},
			wantErr: `invalid metadata entry "novalue"`,
		},
		{
			name:    "no message",
			args:    []string{"send", "--config", cfgPath},
			wantErr: "requires at least 1 arg(s)",
		},
		{
			name:    "invalid config",
			args:    []string{"send", "--config", writeConfig(t, "retryAttempts: -1\n"), "hello"},
			wantErr: "retryAttempts: can not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(tt.args...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata([]string{"a=1", " b =x=y", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": "1", "b": "x=y", "empty": ""}, md)

	md, err = parseMetadata(nil)
	require.NoError(t, err)
	require.Nil(t, md)

	_, err = parseMetadata([]string{"=value"})
	require.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	cfgPath := writeConfig(t, `
apiKey: secret
projectId: billing
environment: staging
rateLimitPerMinute: 30
log:
  level: error
`)

	out, err := runCommand("status", "--config", cfgPath)
	require.NoError(t, err)
	for _, want := range []string{"billing", "staging", "30/30", "set", "now"} {
		require.Contains(t, out, want)
	}

	out, err = runCommand("status", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.Equal(t, "billing", st.ProjectID)
	require.Equal(t, "staging", st.Environment)
	require.True(t, st.Enabled)
	require.Equal(t, 0, st.QueueLength)
	require.Equal(t, 30, st.RateLimit.Capacity)
	require.Contains(t, out, `"timeUntilNextToken": 0`)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand("version")
	require.NoError(t, err)
	require.Equal(t, libinfo.UserAgent(), strings.TrimSpace(out))
}
