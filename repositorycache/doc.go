// Package repositorycache provides a caching decorator for go-repository-bun
// repositories.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and serves reads from a
// cache.CacheService. Writes go to the base repository and, when they succeed,
// invalidate every cached read of the same record type.
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	residents := repositorycache.New(base, svc, cache.NewDefaultKeySerializer(),
//		repositorycache.WithNamespace("residents"),
//		repositorycache.WithTTL(2*time.Minute),
//	)
//
//	r, err := residents.GetByID(ctx, id)
//
// # Cached vs pass-through operations
//
// Get, GetByID, GetByIdentifier, List and Count are cached. Transaction
// variants (GetTx, ListTx, ...) and Raw always hit the database. Every create,
// update, upsert and delete passes through and then invalidates the namespace.
//
// # Criteria
//
// Select criteria are functions, and two closures built from different inputs
// are indistinguishable once serialized. A read that passes criteria is only
// cached when the caller names the query:
//
//	ctx = repositorycache.WithQueryKey(ctx, "by-household:"+code)
//	list, total, err := residents.List(ctx, byHousehold(code))
//
// Without a query key such reads bypass the cache.
//
// # Tags
//
// Cached reads are tagged with the namespace, which defaults to the snake_case
// name of T. WithCacheTags adds more tags for one call. A write carrying the
// same tags invalidates them too, which lets a household update drop resident
// lists cached under "household:<code>".
package repositorycache
