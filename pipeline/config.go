/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/consoletext/consoletext-go/config"
	"github.com/consoletext/consoletext-go/ratelimit"
	"github.com/consoletext/consoletext-go/transport"
)

// Default values.
const (
	DefaultProjectID          = "default"
	DefaultEnvironment        = "development"
	DefaultRateLimitPerMinute = ratelimit.DefaultCapacity
	DefaultRateLimitPerHour   = 1000
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = time.Second
	DefaultDrainInterval      = 5 * time.Second
)

const (
	cfgKeyAPIKey              = "apiKey"
	cfgKeyAPIEndpoint         = "apiEndpoint"
	cfgKeyProjectID           = "projectId"
	cfgKeyEnvironment         = "environment"
	cfgKeyEnabled             = "enabled"
	cfgKeyRateLimitPerMinute  = "rateLimitPerMinute"
	cfgKeyRateLimitPerHour    = "rateLimitPerHour"
	cfgKeyEnforceHourlyLimit  = "enforceHourlyLimit"
	cfgKeyDebug               = "debug"
	cfgKeyRetryAttempts       = "retryAttempts"
	cfgKeyRetryDelay          = "retryDelay"
	cfgKeyQueueDrainInterval  = "queue.drainInterval"
	cfgKeyQueueMaxSize        = "queue.maxSize"
	cfgKeyQueueOverflowPolicy = "queue.overflowPolicy"
	cfgKeyQueueEnforceBackoff = "queue.enforceBackoff"
	cfgKeyTransport           = "transport"
)

// OverflowPolicy decides which message is dropped when a bounded queue is full.
type OverflowPolicy string

// Overflow policies.
const (
	OverflowPolicyDropOldest OverflowPolicy = "drop-oldest"
	OverflowPolicyDropNewest OverflowPolicy = "drop-newest"
)

var availableOverflowPolicies = []string{string(OverflowPolicyDropOldest), string(OverflowPolicyDropNewest)}

// QueueConfig configures the retry queue and its periodic drain.
type QueueConfig struct {
	// DrainInterval is the period of the background drain cycle.
	DrainInterval time.Duration `mapstructure:"drainInterval" yaml:"drainInterval"`

	// MaxSize bounds the queue. Zero means unbounded.
	MaxSize int `mapstructure:"maxSize" yaml:"maxSize"`

	OverflowPolicy OverflowPolicy `mapstructure:"overflowPolicy" yaml:"overflowPolicy"`

	// EnforceBackoff makes the drain cycle wait until a requeued message is due
	// (ScheduledAt has passed). When false, ScheduledAt is informational only.
	EnforceBackoff bool `mapstructure:"enforceBackoff" yaml:"enforceBackoff"`
}

// Config represents the send pipeline configuration.
type Config struct {
	// APIKey is the relay credential. Without it nothing is sent.
	APIKey      string `mapstructure:"apiKey" yaml:"apiKey"`
	APIEndpoint string `mapstructure:"apiEndpoint" yaml:"apiEndpoint"`
	ProjectID   string `mapstructure:"projectId" yaml:"projectId"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`

	// RateLimitPerMinute is both the token bucket capacity and the number of tokens refilled per minute.
	RateLimitPerMinute int `mapstructure:"rateLimitPerMinute" yaml:"rateLimitPerMinute"`

	// RateLimitPerHour is only applied when EnforceHourlyLimit is set.
	RateLimitPerHour   int  `mapstructure:"rateLimitPerHour" yaml:"rateLimitPerHour"`
	EnforceHourlyLimit bool `mapstructure:"enforceHourlyLimit" yaml:"enforceHourlyLimit"`

	// Debug lowers the pipeline logger to the debug level.
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// RetryAttempts is how many times a message that failed with a network error is requeued.
	RetryAttempts int `mapstructure:"retryAttempts" yaml:"retryAttempts"`

	// RetryDelay is the base of the linear backoff: the n-th retry is scheduled n*RetryDelay after the failure.
	RetryDelay time.Duration `mapstructure:"retryDelay" yaml:"retryDelay"`

	Queue     QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Transport transport.Config `mapstructure:"transport" yaml:"transport"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config read from the root of the configuration.
func NewConfig() *Config {
	return &Config{}
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values and the given API key.
func NewDefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:             apiKey,
		APIEndpoint:        transport.DefaultEndpoint,
		ProjectID:          DefaultProjectID,
		Environment:        DefaultEnvironmentFromEnv(),
		Enabled:            true,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		RateLimitPerHour:   DefaultRateLimitPerHour,
		RetryAttempts:      DefaultRetryAttempts,
		RetryDelay:         DefaultRetryDelay,
		Queue: QueueConfig{
			DrainInterval:  DefaultDrainInterval,
			OverflowPolicy: OverflowPolicyDropOldest,
			EnforceBackoff: true,
		},
		Transport: *transport.NewDefaultConfig(),
	}
}

// DefaultEnvironmentFromEnv returns the value of GO_ENV or APP_ENV, or "development" if neither is set.
func DefaultEnvironmentFromEnv() string {
	for _, name := range [...]string{"GO_ENV", "APP_ENV"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return DefaultEnvironment
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAPIEndpoint, transport.DefaultEndpoint)
	dp.SetDefault(cfgKeyProjectID, DefaultProjectID)
	dp.SetDefault(cfgKeyEnvironment, DefaultEnvironmentFromEnv())
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyRateLimitPerMinute, DefaultRateLimitPerMinute)
	dp.SetDefault(cfgKeyRateLimitPerHour, DefaultRateLimitPerHour)
	dp.SetDefault(cfgKeyRetryAttempts, DefaultRetryAttempts)
	dp.SetDefault(cfgKeyRetryDelay, DefaultRetryDelay)
	dp.SetDefault(cfgKeyQueueDrainInterval, DefaultDrainInterval)
	dp.SetDefault(cfgKeyQueueOverflowPolicy, string(OverflowPolicyDropOldest))
	dp.SetDefault(cfgKeyQueueEnforceBackoff, true)
	c.Transport.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyTransport))
}

// Set sets pipeline configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	if c.APIEndpoint, err = dp.GetString(cfgKeyAPIEndpoint); err != nil {
		return err
	}
	if c.ProjectID, err = dp.GetString(cfgKeyProjectID); err != nil {
		return err
	}
	if c.Environment, err = dp.GetString(cfgKeyEnvironment); err != nil {
		return err
	}
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.RateLimitPerMinute, err = dp.GetInt(cfgKeyRateLimitPerMinute); err != nil {
		return err
	}
	if c.RateLimitPerHour, err = dp.GetInt(cfgKeyRateLimitPerHour); err != nil {
		return err
	}
	if c.EnforceHourlyLimit, err = dp.GetBool(cfgKeyEnforceHourlyLimit); err != nil {
		return err
	}
	if c.Debug, err = dp.GetBool(cfgKeyDebug); err != nil {
		return err
	}
	if c.RetryAttempts, err = dp.GetInt(cfgKeyRetryAttempts); err != nil {
		return err
	}
	if c.RetryDelay, err = dp.GetDuration(cfgKeyRetryDelay); err != nil {
		return err
	}
	if err = c.setQueueConfig(dp); err != nil {
		return err
	}
	if err = c.Transport.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyTransport)); err != nil {
		return err
	}
	return c.validate(dp.WrapKeyErr)
}

func (c *Config) setQueueConfig(dp config.DataProvider) error {
	var err error
	if c.Queue.DrainInterval, err = dp.GetDuration(cfgKeyQueueDrainInterval); err != nil {
		return err
	}
	if c.Queue.MaxSize, err = dp.GetInt(cfgKeyQueueMaxSize); err != nil {
		return err
	}
	policy, err := dp.GetStringFromSet(cfgKeyQueueOverflowPolicy, availableOverflowPolicies, true)
	if err != nil {
		return err
	}
	c.Queue.OverflowPolicy = OverflowPolicy(strings.ToLower(policy))
	c.Queue.EnforceBackoff, err = dp.GetBool(cfgKeyQueueEnforceBackoff)
	return err
}

// Validate checks value ranges. A missing API key is not an error here: such a pipeline
// is valid but refuses to send (see ErrMissingAPIKey).
func (c *Config) Validate() error {
	return c.validate(config.WrapKeyErr)
}

func (c *Config) validate(wrapKeyErr func(key string, err error) error) error {
	switch {
	case c.RateLimitPerMinute <= 0:
		return wrapKeyErr(cfgKeyRateLimitPerMinute, errors.New("must be positive"))
	case c.EnforceHourlyLimit && c.RateLimitPerHour <= 0:
		return wrapKeyErr(cfgKeyRateLimitPerHour, errors.New("must be positive when the hourly limit is enforced"))
	case c.RetryAttempts < 0:
		return wrapKeyErr(cfgKeyRetryAttempts, errors.New("can not be negative"))
	case c.RetryDelay < 0:
		return wrapKeyErr(cfgKeyRetryDelay, errors.New("can not be negative"))
	case c.Queue.DrainInterval <= 0:
		return wrapKeyErr(cfgKeyQueueDrainInterval, errors.New("must be positive"))
	case c.Queue.MaxSize < 0:
		return wrapKeyErr(cfgKeyQueueMaxSize, errors.New("can not be negative"))
	}
	switch c.Queue.OverflowPolicy {
	case "", OverflowPolicyDropOldest, OverflowPolicyDropNewest:
	default:
		return wrapKeyErr(cfgKeyQueueOverflowPolicy,
			fmt.Errorf("unknown value %q, should be one of %v", c.Queue.OverflowPolicy, availableOverflowPolicies))
	}
	return nil
}
