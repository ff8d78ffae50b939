package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-barangay-registry/internal/cacheinfra"
)

// ErrInvalidResultType is returned by the typed helpers when the cached value
// does not hold the requested type.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// ComputeFn produces a value on a cache miss.
type ComputeFn = cacheinfra.ComputeFn

// SetOption customizes a single Set or GetOrSet call.
type SetOption = cacheinfra.SetOption

// Stats is a point-in-time view of cache usage.
type Stats = cacheinfra.Stats

// CacheService is the process-local cache used by repositories and the
// caching decorator. Keys are prefixed by the implementation.
type CacheService interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, data any, opts ...SetOption)
	Delete(ctx context.Context, key string) bool
	GetOrSet(ctx context.Context, key string, fn ComputeFn, opts ...SetOption) (any, error)
	InvalidateByTag(ctx context.Context, tag string) int
	InvalidatePattern(ctx context.Context, pattern string) int
	Cleanup(ctx context.Context) int
	Clear(ctx context.Context)
	Stats() Stats
	HitRatio() float64
}

// WithTTL overrides the default TTL for one entry.
func WithTTL(ttl time.Duration) SetOption {
	return cacheinfra.WithTTL(ttl)
}

// WithTags attaches invalidation tags to one entry.
func WithTags(tags ...string) SetOption {
	return cacheinfra.WithTags(tags...)
}

// Get is a typed lookup. A value of another type is reported as a miss.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool) {
	var zero T
	raw, ok := service.Get(ctx, key)
	if !ok {
		return zero, false
	}
	if raw == nil {
		return zero, true
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// GetOrSet is the typed form of CacheService.GetOrSet.
func GetOrSet[T any](ctx context.Context, service CacheService, key string, fn func(ctx context.Context) (T, error), opts ...SetOption) (T, error) {
	var zero T
	result, err := service.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		return v, err
	}, opts...)
	if err != nil {
		return zero, err
	}

	// a nil interface can't be asserted; hand back the zero value
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
