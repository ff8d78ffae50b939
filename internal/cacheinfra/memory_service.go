package cacheinfra

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-barangay-registry/internal/metrics"
)

// entry is what we store in go-cache. Expiry is tracked here rather than by
// go-cache so that eviction order and the clock stay under our control.
type entry struct {
	Data      any           `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Tags      []string      `json:"tags"`
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > e.TTL
}

func (e *entry) hasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// MemoryOption configures a MemoryService.
type MemoryOption func(*MemoryService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records hits, misses and evictions.
func WithMetrics(m *metrics.Metrics) MemoryOption {
	return func(s *MemoryService) {
		s.metrics = m
	}
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(logger zerolog.Logger) MemoryOption {
	return func(s *MemoryService) {
		s.logger = logger
	}
}

// MemoryService is a process-local TTL cache with tag and pattern
// invalidation. Storage is a go-cache instance with no native expiration.
type MemoryService struct {
	cfg     Config
	store   *gocache.Cache
	mu      sync.Mutex
	group   singleflight.Group
	now     func() time.Time
	hits    int64
	misses  int64
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewMemoryService validates cfg and returns an empty cache.
func NewMemoryService(cfg Config, opts ...MemoryOption) (*MemoryService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &MemoryService{
		cfg:    cfg,
		store:  gocache.New(gocache.NoExpiration, 0),
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryService) key(k string) string {
	return s.cfg.KeyPrefix + k
}

// Get returns the value for key. Expired entries are removed and reported as a miss.
func (s *MemoryService) Get(ctx context.Context, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(s.key(key))
}

func (s *MemoryService) getLocked(fullKey string) (any, bool) {
	raw, ok := s.store.Get(fullKey)
	if !ok {
		s.misses++
		s.metrics.CacheMiss()
		return nil, false
	}

	e := raw.(*entry)
	if e.expired(s.now()) {
		s.store.Delete(fullKey)
		s.misses++
		s.metrics.CacheMiss()
		s.metrics.CacheEvicted("expired", 1)
		return nil, false
	}

	s.hits++
	s.metrics.CacheHit()
	return e.Data, true
}

// Set stores data under key. Inserting a new key into a full cache first
// evicts the single oldest entry.
func (s *MemoryService) Set(ctx context.Context, key string, data any, opts ...SetOption) {
	o := SetOptions{TTL: s.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.TTL <= 0 {
		o.TTL = s.cfg.DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fullKey := s.key(key)
	if _, exists := s.store.Get(fullKey); !exists && s.store.ItemCount() >= s.cfg.MaxSize {
		s.evictOldestLocked()
	}

	s.store.Set(fullKey, &entry{
		Data:      data,
		Timestamp: s.now(),
		TTL:       o.TTL,
		Tags:      slices.Clone(o.Tags),
	}, gocache.NoExpiration)
}

// evictOldestLocked removes the entry with the earliest timestamp. Ties are
// broken by key so eviction is deterministic.
func (s *MemoryService) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, item := range s.store.Items() {
		e := item.Object.(*entry)
		if !found || e.Timestamp.Before(oldest) || (e.Timestamp.Equal(oldest) && k < oldestKey) {
			oldestKey, oldest, found = k, e.Timestamp, true
		}
	}
	if found {
		s.store.Delete(oldestKey)
		s.metrics.CacheEvicted("capacity", 1)
	}
}

// Delete removes key and reports whether it was present.
func (s *MemoryService) Delete(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullKey := s.key(key)
	if _, ok := s.store.Get(fullKey); !ok {
		return false
	}
	s.store.Delete(fullKey)
	s.metrics.CacheEvicted("delete", 1)
	return true
}

// GetOrSet returns the cached value or computes, stores and returns it.
// Concurrent misses on the same key share one computation; errors are not cached.
func (s *MemoryService) GetOrSet(ctx context.Context, key string, fn ComputeFn, opts ...SetOption) (any, error) {
	if v, ok := s.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(ctx, key, data, opts...)
		return data, nil
	})
	return v, err
}

// InvalidateByTag removes every entry tagged with tag.
func (s *MemoryService) InvalidateByTag(ctx context.Context, tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, item := range s.store.Items() {
		if item.Object.(*entry).hasTag(tag) {
			s.store.Delete(k)
			removed++
		}
	}
	s.metrics.CacheEvicted("tag", removed)
	return removed
}

// InvalidatePattern removes entries whose key (without prefix) matches a glob
// where '*' matches any run of characters.
func (s *MemoryService) InvalidatePattern(ctx context.Context, pattern string) int {
	re := globToRegexp(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.store.Items() {
		if re.MatchString(strings.TrimPrefix(k, s.cfg.KeyPrefix)) {
			s.store.Delete(k)
			removed++
		}
	}
	s.metrics.CacheEvicted("pattern", removed)
	return removed
}

func globToRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// Cleanup removes all expired entries.
func (s *MemoryService) Cleanup(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, item := range s.store.Items() {
		if item.Object.(*entry).expired(now) {
			s.store.Delete(k)
			removed++
		}
	}
	s.metrics.CacheEvicted("expired", removed)
	return removed
}

// Clear drops every entry. Hit and miss counters are kept.
func (s *MemoryService) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Flush()
}

// Start sweeps expired entries every CleanupInterval until ctx is done.
func (s *MemoryService) Start(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cleanup(ctx); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("cache cleanup")
			}
		}
	}
}

// Stats returns hit/miss counters, size and a rough memory estimate.
func (s *MemoryService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.store.Items()
	estimate := 0
	for k, item := range items {
		if data, err := json.Marshal(item.Object); err == nil {
			estimate += (len(k) + len(data)) * 2
		}
	}

	return Stats{
		Hits:           s.hits,
		Misses:         s.misses,
		Size:           len(items),
		MemoryEstimate: estimate,
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s *MemoryService) HitRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}
