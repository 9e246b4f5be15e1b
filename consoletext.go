/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package consoletext provides a process-wide default client for sending alert messages to Console.text.
//
// The default client must be configured once before use:
//
//	cfg := pipeline.NewDefaultConfig(os.Getenv("CONSOLETEXT_API_KEY"))
//	if err := consoletext.Configure(cfg); err != nil {
//		return err
//	}
//	defer consoletext.Shutdown(context.Background())
//
//	consoletext.Critical(ctx, "payment gateway is down", map[string]interface{}{"gateway": "stripe"})
//
// Calls made before Configure (or after Shutdown) return false and log a warning.
// Callers that prefer explicit dependencies can create a *pipeline.Pipeline directly or use Default.
package consoletext

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/consoletext/consoletext-go/log"
	"github.com/consoletext/consoletext-go/message"
	"github.com/consoletext/consoletext-go/pipeline"
)

// ErrNotConfigured is returned when the default client is used before Configure.
var ErrNotConfigured = errors.New("consoletext is not configured, call consoletext.Configure first")

// DefaultShutdownTimeout bounds closing the previous client when Configure replaces it.
const DefaultShutdownTimeout = 10 * time.Second

var (
	mu     sync.RWMutex
	std    *pipeline.Pipeline
	logger log.FieldLogger

	fallbackLoggerOnce sync.Once
	fallbackLogger     log.FieldLogger
)

// Configure creates the default client. If one already exists, it's replaced and closed.
func Configure(cfg *pipeline.Config) error {
	return ConfigureWithOpts(cfg, pipeline.Opts{})
}

// ConfigureWithOpts creates the default client with options. If one already exists, it's replaced and closed.
// Queued messages of the replaced client are not moved to the new one.
func ConfigureWithOpts(cfg *pipeline.Config, opts pipeline.Opts) error {
	p, err := pipeline.NewWithOpts(cfg, opts)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := std
	std = p
	if opts.Logger != nil {
		logger = opts.Logger
	}
	mu.Unlock()

	if prev == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err = prev.Close(ctx); err != nil {
		getLogger().Warn("failed to close replaced consoletext client", log.Error(err))
	}
	return nil
}

// SetLogger sets the logger used to report misuse of the default client (e.g. sending before Configure).
func SetLogger(l log.FieldLogger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Default returns the default client, or nil if it's not configured.
func Default() *pipeline.Pipeline {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// getLogger returns the logger set with SetLogger or Configure, or a stderr logger for warnings.
func getLogger() log.FieldLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	fallbackLoggerOnce.Do(func() {
		cfg := log.NewDefaultConfig()
		cfg.Level = log.LevelWarn
		cfg.Format = log.FormatText
		fallbackLogger, _ = log.NewLogger(cfg)
	})
	return fallbackLogger
}

func configured(op string) (*pipeline.Pipeline, bool) {
	p := Default()
	if p == nil {
		getLogger().Warn(ErrNotConfigured.Error(), log.String("operation", op))
		return nil, false
	}
	return p, true
}

// Text sends a message with the given severity through the default client.
func Text(ctx context.Context, text string, severity message.Severity, metadata map[string]interface{}) bool {
	p, ok := configured("text")
	if !ok {
		return false
	}
	return p.Send(ctx, text, severity, metadata)
}

// Critical sends a critical message through the default client.
func Critical(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return Text(ctx, text, message.SeverityCritical, metadata)
}

// Error sends an error message through the default client.
func Error(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return Text(ctx, text, message.SeverityError, metadata)
}

// Warning sends a warning message through the default client.
func Warning(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return Text(ctx, text, message.SeverityWarning, metadata)
}

// Info sends an info message through the default client.
func Info(ctx context.Context, text string, metadata map[string]interface{}) bool {
	return Text(ctx, text, message.SeverityInfo, metadata)
}

// GetStatus returns the status of the default client. False is returned if it's not configured.
func GetStatus() (pipeline.Status, bool) {
	p := Default()
	if p == nil {
		return pipeline.Status{}, false
	}
	return p.Status(), true
}

// UpdateConfig changes the configuration of the default client.
func UpdateConfig(u pipeline.Update) {
	if p, ok := configured("updateConfig"); ok {
		p.UpdateConfig(u)
	}
}

// ClearQueue drops the messages queued by the default client.
func ClearQueue() {
	if p, ok := configured("clearQueue"); ok {
		p.ClearQueue()
	}
}

// Flush waits until the default client delivers its queued messages or ctx is done.
func Flush(ctx context.Context) error {
	p := Default()
	if p == nil {
		return ErrNotConfigured
	}
	return p.Flush(ctx)
}

// Shutdown closes the default client. Subsequent calls behave as if Configure was never called.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	p := std
	std = nil
	mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close(ctx)
}
