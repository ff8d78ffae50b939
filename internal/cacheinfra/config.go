package cacheinfra

import "time"

// Config holds the configuration for the in-process TTL cache.
type Config struct {
	// MaxSize is the maximum number of entries. When full, the single oldest
	// entry is evicted before a new key is inserted. Must be greater than 0.
	MaxSize int

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Must be greater than 0.
	DefaultTTL time.Duration

	// CleanupInterval is how often Start sweeps expired entries.
	// Zero disables the background sweep.
	CleanupInterval time.Duration

	// KeyPrefix is prepended to every key before storage.
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		MaxSize:         1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
		KeyPrefix:       "rbi:",
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return &ConfigError{Field: "MaxSize", Message: "must be greater than 0"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.CleanupInterval < 0 {
		return &ConfigError{Field: "CleanupInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
