package cache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-barangay-registry/internal/cacheinfra"
	"github.com/goliatone/go-barangay-registry/internal/metrics"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	MaxSize         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	KeyPrefix       string
}

// Memory is the default CacheService implementation.
type Memory = cacheinfra.MemoryService

// Option configures the default implementation.
type Option = cacheinfra.MemoryOption

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return fromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the default cache service implementation using the provided configuration.
func NewCacheService(cfg Config, opts ...Option) (*Memory, error) {
	return cacheinfra.NewMemoryService(cfg.toInternal(), opts...)
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return cacheinfra.WithClock(now)
}

// WithMetrics reports hits, misses and evictions.
func WithMetrics(m *metrics.Metrics) Option {
	return cacheinfra.WithMetrics(m)
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(logger zerolog.Logger) Option {
	return cacheinfra.WithLogger(logger)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		MaxSize:         c.MaxSize,
		DefaultTTL:      c.DefaultTTL,
		CleanupInterval: c.CleanupInterval,
		KeyPrefix:       c.KeyPrefix,
	}
}

func fromInternal(cfg cacheinfra.Config) Config {
	return Config{
		MaxSize:         cfg.MaxSize,
		DefaultTTL:      cfg.DefaultTTL,
		CleanupInterval: cfg.CleanupInterval,
		KeyPrefix:       cfg.KeyPrefix,
	}
}
