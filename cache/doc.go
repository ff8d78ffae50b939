// Package cache defines the process-local cache contract used by the registry
// repositories, its configuration, and the key serializer.
//
// # Overview
//
// CacheService stores arbitrary values under string keys with a per-entry TTL
// and optional tags:
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	svc.Set(ctx, "residents:get:"+id, resident, cache.WithTags("residents"))
//
// Entries expire lazily: a Get after the TTL has passed deletes the entry and
// reports a miss. A background sweep (Memory.Start) removes expired entries
// that are never read again. When the cache is full, inserting a new key evicts
// the single oldest entry.
//
// # Invalidation
//
// InvalidateByTag drops every entry carrying a tag. InvalidatePattern accepts a
// glob where '*' matches any run of characters and everything else is literal:
//
//	svc.InvalidatePattern(ctx, "residents:list:*")
//
// # Typed helpers
//
// Get and GetOrSet wrap the untyped interface. GetOrSet returns
// ErrInvalidResultType when a cached value holds a different type:
//
//	r, err := cache.GetOrSet(ctx, svc, key, func(ctx context.Context) (Resident, error) {
//		return repo.Load(ctx, id)
//	}, cache.WithTTL(time.Minute))
//
// # Keys
//
// KeySerializer turns a method name and its arguments into a stable key. Maps
// are sorted and structs are walked field by field. Functions serialize to
// their type only, so two different criteria closures collide: readers that
// pass criteria should attach an explicit query key instead (see the
// repositorycache package).
package cache
