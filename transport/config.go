/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package transport

import (
	"errors"
	"time"

	"github.com/consoletext/consoletext-go/config"
)

// DefaultTimeout bounds a single delivery to the relay.
const DefaultTimeout = 10 * time.Second

const cfgDefaultKeyPrefix = "transport"

// configuration properties
const (
	cfgKeyTimeout                        = "timeout"
	cfgKeyLoggerEnabled                  = "logger.enabled"
	cfgKeyLoggerMode                     = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold     = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                 = "metrics.enabled"
	cfgKeyRateLimitsEnabled              = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                = "rateLimits.limit"
	cfgKeyRateLimitsBurst                = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout          = "rateLimits.waitTimeout"
	cfgKeyRateLimitsAdaptive             = "rateLimits.adaptive"
	cfgKeyCircuitBreakerEnabled          = "circuitBreaker.enabled"
	cfgKeyCircuitBreakerFailureThreshold = "circuitBreaker.failureThreshold"
	cfgKeyCircuitBreakerResetTimeout     = "circuitBreaker.resetTimeout"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// LoggerConfig represents configuration options for relay request logs.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// SlowRequestThreshold is a threshold for slow requests.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold"`

	// Mode of logging.
	Mode LoggingMode `mapstructure:"mode" yaml:"mode"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyLoggerEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	slowRequestThreshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if slowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, errors.New("can not be negative"))
	}
	c.SlowRequestThreshold = slowRequestThreshold

	mode, err := dp.GetString(cfgKeyLoggerMode)
	if err != nil {
		return err
	}
	if !LoggingMode(mode).IsValid() {
		return dp.WrapKeyErr(cfgKeyLoggerMode, errors.New("invalid mode, choose one of: [none, all, failed]"))
	}
	c.Mode = LoggingMode(mode)
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *LoggerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLoggerEnabled, true)
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeFailed))
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for relay request metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) (err error) {
	c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *MetricsConfig) SetProviderDefaults(_ config.DataProvider) {}

// RateLimitConfig represents configuration options for the HTTP-level request cap.
type RateLimitConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Limit is the maximum number of requests per second.
	Limit int `mapstructure:"limit" yaml:"limit"`

	// Burst allow temporary spikes in request rate.
	Burst int `mapstructure:"burst" yaml:"burst"`

	// WaitTimeout is the maximum time to wait for a request slot.
	WaitTimeout time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout"`

	// Adaptive slows down to one request per second while the relay reports an exhausted quota.
	Adaptive bool `mapstructure:"adaptive" yaml:"adaptive"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, errors.New("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("can not be negative"))
	}
	if c.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, errors.New("can not be negative"))
	}
	c.Adaptive, err = dp.GetBool(cfgKeyRateLimitsAdaptive)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *RateLimitConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimitsLimit, 10)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout, Adaptive: c.Adaptive}
}

// CircuitBreakerConfig represents configuration options for the relay circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	FailureThreshold int           `mapstructure:"failureThreshold" yaml:"failureThreshold"`
	ResetTimeout     time.Duration `mapstructure:"resetTimeout" yaml:"resetTimeout"`
}

// Set is part of config interface implementation.
func (c *CircuitBreakerConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyCircuitBreakerEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.FailureThreshold, err = dp.GetInt(cfgKeyCircuitBreakerFailureThreshold); err != nil {
		return err
	}
	if c.FailureThreshold <= 0 {
		return dp.WrapKeyErr(cfgKeyCircuitBreakerFailureThreshold, errors.New("must be positive"))
	}
	if c.ResetTimeout, err = dp.GetDuration(cfgKeyCircuitBreakerResetTimeout); err != nil {
		return err
	}
	if c.ResetTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyCircuitBreakerResetTimeout, errors.New("must be positive"))
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *CircuitBreakerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyCircuitBreakerFailureThreshold, DefaultCircuitBreakerFailureThreshold)
	dp.SetDefault(cfgKeyCircuitBreakerResetTimeout, DefaultCircuitBreakerResetTimeout)
}

// TransportOpts returns transport options.
func (c *CircuitBreakerConfig) TransportOpts() CircuitBreakerRoundTripperOpts {
	return CircuitBreakerRoundTripperOpts{FailureThreshold: c.FailureThreshold, ResetTimeout: c.ResetTimeout}
}

// Config represents options for the relay HTTP client.
type Config struct {
	// Timeout is the maximum time to wait for the relay to answer.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Logger         LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	Metrics        MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
	RateLimits     RateLimitConfig      `mapstructure:"rateLimits" yaml:"rateLimits"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker" yaml:"circuitBreaker"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config read from the "transport" key prefix.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values:
// 10s timeout and logging of failed requests.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Timeout:   DefaultTimeout,
		Logger:    LoggerConfig{Enabled: true, Mode: LoggingModeFailed},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, errors.New("must be positive"))
	}
	c.Timeout = timeout

	for _, sub := range c.sections() {
		if err = sub.Set(dp); err != nil {
			return err
		}
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	for _, sub := range c.sections() {
		sub.SetProviderDefaults(dp)
	}
}

func (c *Config) sections() []config.Config {
	return []config.Config{&c.Logger, &c.Metrics, &c.RateLimits, &c.CircuitBreaker}
}
