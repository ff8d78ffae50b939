package cacheinfra

import (
	"context"
	"time"
)

// ComputeFn produces a value on a cache miss.
type ComputeFn func(ctx context.Context) (any, error)

// SetOptions are the per-entry settings accepted by Set and GetOrSet.
type SetOptions struct {
	TTL  time.Duration
	Tags []string
}

// SetOption mutates SetOptions.
type SetOption func(*SetOptions)

// WithTTL overrides the default TTL for one entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *SetOptions) {
		o.TTL = ttl
	}
}

// WithTags attaches invalidation tags to one entry.
func WithTags(tags ...string) SetOption {
	return func(o *SetOptions) {
		o.Tags = append(o.Tags, tags...)
	}
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
	// MemoryEstimate is a rough byte estimate (serialized length x 2), for
	// observability only.
	MemoryEstimate int `json:"memory_estimate"`
}
