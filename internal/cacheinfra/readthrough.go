package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// ReadThroughConfig holds the sturdyc settings used for slow-changing
// reference data such as the PSGC tables.
type ReadThroughConfig struct {
	// Capacity defines the maximum number of entries. Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards. Must be greater than 0.
	NumShards int

	// TTL is the time-to-live for cached entries. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when full (1-100).
	EvictionPercentage int

	// EarlyRefresh refreshes hot entries before they expire. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys whose fetch reported ErrNotFound so
	// unknown codes do not hit the database on every lookup.
	MissingRecordStorage bool
}

// EarlyRefreshConfig mirrors the sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultReadThroughConfig suits a few thousand geographic codes.
func DefaultReadThroughConfig() ReadThroughConfig {
	return ReadThroughConfig{
		Capacity:             50000,
		NumShards:            64,
		TTL:                  time.Hour,
		EvictionPercentage:   10,
		MissingRecordStorage: true,
	}
}

// Validate checks if the configuration values are valid.
func (c ReadThroughConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if er := c.EarlyRefresh; er != nil {
		if er.MinAsyncRefreshTime < 0 || er.MaxAsyncRefreshTime < 0 || er.SyncRefreshTime < 0 || er.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh", Message: "durations must be non-negative"}
		}
	}
	return nil
}

func (c ReadThroughConfig) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	return options
}

// ErrNotFound is what a fetch function returns to mark a key as missing.
var ErrNotFound = sturdyc.ErrNotFound

// IsMissing reports whether err means the key has no record upstream.
func IsMissing(err error) bool {
	return errors.Is(err, sturdyc.ErrNotFound) || errors.Is(err, sturdyc.ErrMissingRecord)
}

// ReadThrough is a typed sturdyc client.
type ReadThrough[T any] struct {
	client *sturdyc.Client[T]
}

// NewReadThrough validates cfg and builds the sturdyc client.
func NewReadThrough[T any](cfg ReadThroughConfig) (*ReadThrough[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &ReadThrough[T]{client: client}, nil
}

// GetOrFetch returns the cached value for key or calls fetch and caches it.
func (r *ReadThrough[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	return r.client.GetOrFetch(ctx, key, fetch)
}

// Delete drops one key.
func (r *ReadThrough[T]) Delete(key string) {
	r.client.Delete(key)
}

// DeleteByPrefix drops every key starting with prefix and returns how many.
func (r *ReadThrough[T]) DeleteByPrefix(prefix string) int {
	removed := 0
	for _, key := range r.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			r.client.Delete(key)
			removed++
		}
	}
	return removed
}

// Size returns the number of cached entries.
func (r *ReadThrough[T]) Size() int {
	return len(r.client.ScanKeys())
}
