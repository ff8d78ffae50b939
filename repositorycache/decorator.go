package repositorycache

import (
	"context"
	"reflect"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-barangay-registry/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// Option customizes a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	ttl       time.Duration
	logger    zerolog.Logger
}

// WithNamespace overrides the tag derived from the record type.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// WithTTL sets the TTL for cached reads. Zero uses the cache default.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithLogger logs cache bypasses and invalidations at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// CachedRepository decorates a base repository with caching functionality.
// Every cached read is tagged with the namespace; successful writes drop the
// whole namespace.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
	ttl           time.Duration
	logger        zerolog.Logger
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.namespace == "" {
		o.namespace = namespaceFor[T]()
	}
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}

	return &CachedRepository[T]{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     o.namespace,
		ttl:           o.ttl,
		logger:        o.logger,
	}
}

// Namespace returns the tag every cached read of this repository carries.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

func namespaceFor[T any]() string {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if name := toSnake(rt.Name()); name != "" {
		return name
	}
	return toSnake(rt.String())
}

// detach returns a shallow copy of a cached struct pointer, so a caller
// editing its result does not change what later readers get. Values that
// are not struct pointers are returned as is.
func detach[T any](v T) T {
	rv := reflect.ValueOf(&v).Elem()
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return v
	}
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	return cp.Interface().(T)
}

// cacheKey returns the key for a read and whether the read may be cached.
func (c *CachedRepository[T]) cacheKey(ctx context.Context, method string, criteriaCount int, args ...any) (string, bool) {
	if criteriaCount > 0 {
		queryKey, ok := queryKeyFromContext(ctx)
		if !ok {
			c.logger.Debug().Str("namespace", c.namespace).Str("method", method).Msg("criteria without query key, bypassing cache")
			return "", false
		}
		args = append(args, queryKey)
	}
	return c.namespace + ":" + c.keySerializer.SerializeKey(method, args...), true
}

func (c *CachedRepository[T]) setOptions(ctx context.Context) []cache.SetOption {
	tags := append([]string{c.namespace}, cacheTagsFromContext(ctx)...)
	opts := []cache.SetOption{cache.WithTags(tags...)}
	if c.ttl > 0 {
		opts = append(opts, cache.WithTTL(c.ttl))
	}
	return opts
}

// invalidate drops the namespace and any tags attached to ctx.
func (c *CachedRepository[T]) invalidate(ctx context.Context) {
	removed := c.cache.InvalidateByTag(ctx, c.namespace)
	for _, tag := range cacheTagsFromContext(ctx) {
		removed += c.cache.InvalidateByTag(ctx, tag)
	}
	c.logger.Debug().Str("namespace", c.namespace).Int("removed", removed).Msg("cache invalidated")
}

// settle, settleMany and settleErr pass a write result through and
// invalidate when the write succeeded.
func (c *CachedRepository[T]) settle(ctx context.Context) func(T, error) (T, error) {
	return func(record T, err error) (T, error) {
		return record, c.settleErr(ctx, err)
	}
}

func (c *CachedRepository[T]) settleMany(ctx context.Context) func([]T, error) ([]T, error) {
	return func(records []T, err error) ([]T, error) {
		return records, c.settleErr(ctx, err)
	}
}

func (c *CachedRepository[T]) settleErr(ctx context.Context, err error) error {
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "Get", len(criteria))
	if !ok {
		return c.base.Get(ctx, criteria...)
	}
	record, err := cache.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	}, c.setOptions(ctx)...)
	return detach(record), err
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "GetByID", len(criteria), id)
	if !ok {
		return c.base.GetByID(ctx, id, criteria...)
	}
	record, err := cache.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}, c.setOptions(ctx)...)
	return detach(record), err
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key, ok := c.cacheKey(ctx, "List", len(criteria))
	if !ok {
		return c.base.List(ctx, criteria...)
	}
	res, err := cache.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	}, c.setOptions(ctx)...)
	if err != nil {
		return nil, 0, err
	}
	records := make([]T, len(res.Records))
	for i, r := range res.Records {
		records[i] = detach(r)
	}
	return records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key, ok := c.cacheKey(ctx, "Count", len(criteria))
	if !ok {
		return c.base.Count(ctx, criteria...)
	}
	return cache.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	}, c.setOptions(ctx)...)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "GetByIdentifier", len(criteria), identifier)
	if !ok {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	record, err := cache.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}, c.setOptions(ctx)...)
	return detach(record), err
}

// writes

func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.settle(ctx)(c.base.Create(ctx, record, criteria...))
}

func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.settle(ctx)(c.base.CreateTx(ctx, tx, record, criteria...))
}

func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.CreateMany(ctx, records, criteria...))
}

func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.CreateManyTx(ctx, tx, records, criteria...))
}

// GetOrCreate may insert, so it invalidates like a write.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return c.settle(ctx)(c.base.GetOrCreate(ctx, record))
}

func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return c.settle(ctx)(c.base.GetOrCreateTx(ctx, tx, record))
}

func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.settle(ctx)(c.base.Update(ctx, record, criteria...))
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.settle(ctx)(c.base.UpdateTx(ctx, tx, record, criteria...))
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.UpdateMany(ctx, records, criteria...))
}

func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.UpdateManyTx(ctx, tx, records, criteria...))
}

func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.settle(ctx)(c.base.Upsert(ctx, record, criteria...))
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.settle(ctx)(c.base.UpsertTx(ctx, tx, record, criteria...))
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.UpsertMany(ctx, records, criteria...))
}

func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.settleMany(ctx)(c.base.UpsertManyTx(ctx, tx, records, criteria...))
}

func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return c.settleErr(ctx, c.base.Delete(ctx, record))
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.settleErr(ctx, c.base.DeleteTx(ctx, tx, record))
}

func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.settleErr(ctx, c.base.DeleteMany(ctx, criteria...))
}

func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.settleErr(ctx, c.base.DeleteManyTx(ctx, tx, criteria...))
}

func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.settleErr(ctx, c.base.DeleteWhere(ctx, criteria...))
}

func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.settleErr(ctx, c.base.DeleteWhereTx(ctx, tx, criteria...))
}

// ForceDelete removes the row even when the model supports soft delete.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return c.settleErr(ctx, c.base.ForceDelete(ctx, record))
}

func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.settleErr(ctx, c.base.ForceDeleteTx(ctx, tx, record))
}

// Reads inside a transaction must see uncommitted state, so they skip the cache.

func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw is never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}
