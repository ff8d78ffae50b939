package repositorycache

import (
	"context"
	"slices"
)

type (
	cacheTagsContextKey struct{}
	queryKeyContextKey  struct{}
)

// WithCacheTags attaches additional cache tags to the context. Reads register
// them on the cached entry and writes invalidate them alongside the namespace.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

// WithQueryKey names the criteria passed to the next read. Criteria are
// functions and cannot be keyed on their own, so reads with criteria and no
// query key skip the cache.
func WithQueryKey(ctx context.Context, key string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, queryKeyContextKey{}, key)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return slices.Clone(tags)
	}
	return nil
}

func queryKeyFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	key, ok := ctx.Value(queryKeyContextKey{}).(string)
	return key, ok && key != ""
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
