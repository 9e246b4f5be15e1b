/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package config loads client configuration from YAML/JSON files, readers and
// environment variables. Each configuration section implements Config and
// reads its keys from a DataProvider, which is backed by viper.
package config

import "fmt"

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	// SetProviderDefaults registers default values before any source is read.
	SetProviderDefaults(dp DataProvider)
	// Set reads and validates values from the data provider.
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration sections that live under a key prefix.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// WrapKeyErrIfNeeded wraps error adding information about a key where this error occurs.
// If error is nil, it does nothing.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}
