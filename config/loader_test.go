/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type relayConfig struct {
	Endpoint string
	Timeout  time.Duration
	prefix   string
}

func (c *relayConfig) KeyPrefix() string { return c.prefix }

func (c *relayConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("endpoint", "https://api.console-text.dev")
	dp.SetDefault("timeout", "10s")
}

func (c *relayConfig) Set(dp DataProvider) error {
	var err error
	if c.Endpoint, err = dp.GetString("endpoint"); err != nil {
		return err
	}
	if c.Timeout, err = dp.GetDuration("timeout"); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return dp.WrapKeyErr("timeout", errors.New("must be positive"))
	}
	return nil
}

type queueConfig struct {
	MaxSize int
}

func (c *queueConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("queue.maxSize", 100)
}

func (c *queueConfig) Set(dp DataProvider) (err error) {
	c.MaxSize, err = dp.GetInt("queue.maxSize")
	return err
}

func TestLoaderLoadFromReader(t *testing.T) {
	yamlData := `
relay:
  endpoint: https://relay.example.com
queue:
  maxSize: 5
`
	relayCfg := &relayConfig{prefix: "relay"}
	queueCfg := &queueConfig{}
	err := NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(yamlData), DataTypeYAML, relayCfg, queueCfg)
	require.NoError(t, err)

	require.Equal(t, "https://relay.example.com", relayCfg.Endpoint)
	require.Equal(t, 10*time.Second, relayCfg.Timeout)
	require.Equal(t, 5, queueCfg.MaxSize)
}

func TestLoaderLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"relay": {"timeout": "3s"}}`), 0o600))

	relayCfg := &relayConfig{prefix: "relay"}
	require.NoError(t, NewDefaultLoader("").LoadFromFile(path, DataTypeJSON, relayCfg))
	require.Equal(t, 3*time.Second, relayCfg.Timeout)
	require.Equal(t, "https://api.console-text.dev", relayCfg.Endpoint)

	err := NewDefaultLoader("").LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"), DataTypeYAML, relayCfg)
	require.Error(t, err)
}

func TestLoaderLoadFromEnv(t *testing.T) {
	t.Setenv("CONSOLETEXT_RELAY_TIMEOUT", "750ms")
	t.Setenv("CONSOLETEXT_QUEUE_MAXSIZE", "42")

	relayCfg := &relayConfig{prefix: "relay"}
	queueCfg := &queueConfig{}
	require.NoError(t, NewDefaultLoader("consoletext").Load(relayCfg, queueCfg))
	require.Equal(t, 750*time.Millisecond, relayCfg.Timeout)
	require.Equal(t, 42, queueCfg.MaxSize)
}

func TestLoaderErrorHasPrefixedKey(t *testing.T) {
	relayCfg := &relayConfig{prefix: "relay"}
	err := NewDefaultLoader("").LoadFromReader(bytes.NewBufferString("relay:\n  timeout: -1s"), DataTypeYAML, relayCfg)
	require.EqualError(t, err, "relay.timeout: must be positive")
}

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := NewViperAdapter()
	dp := NewKeyPrefixedDataProvider(va, "consoletext")

	dp.SetDefault("queue.maxSize", 10)
	dp.Set("apiKey", "secret")
	require.Equal(t, "secret", va.Get("consoletext.apiKey"))
	require.True(t, dp.IsSet("apiKey"))

	n, err := dp.GetInt("queue.maxSize")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	_, err = dp.GetInt("apiKey")
	require.ErrorContains(t, err, "consoletext.apiKey")

	nested := NewKeyPrefixedDataProvider(dp, "transport")
	nested.Set("timeout", "2s")
	d, err := va.GetDuration("consoletext.transport.timeout")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)
	require.EqualError(t, nested.WrapKeyErr("timeout", errors.New("bad")), "consoletext.transport.timeout: bad")
}
