package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-barangay-registry/audit"
	"github.com/goliatone/go-barangay-registry/cache"
	"github.com/goliatone/go-barangay-registry/internal/cacheinfra"
	"github.com/goliatone/go-barangay-registry/internal/config"
	"github.com/goliatone/go-barangay-registry/internal/logging"
	"github.com/goliatone/go-barangay-registry/internal/metrics"
	"github.com/goliatone/go-barangay-registry/internal/store"
	"github.com/goliatone/go-barangay-registry/psgc"
	"github.com/goliatone/go-barangay-registry/registry"
	"github.com/goliatone/go-barangay-registry/repository"
	"github.com/goliatone/go-barangay-registry/repositorycache"
	"github.com/goliatone/go-barangay-registry/syncqueue"
)

// ErrNoBackend is returned by the sync dispatcher when no backend URL is
// configured. Items stay queued.
var ErrNoBackend = errors.New("di: sync backend not configured")

// Container builds and owns every registry component. Nothing is shared
// through package state; each Container is independent.
type Container struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *bun.DB
	ownsDB   bool

	cacheService  *cache.Memory
	keySerializer cache.KeySerializer
	auditor       *audit.Emitter
	areas         *psgc.Lookup

	residents  *registry.ResidentRepository
	households *registry.HouseholdRepository
	users      *registry.UserRepository

	syncStore   *syncqueue.Store
	dispatcher  syncqueue.Dispatcher
	monitor     *syncqueue.Monitor
	syncService *syncqueue.Service

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger     *zerolog.Logger
	db         *bun.DB
	clock      func() time.Time
	dispatcher syncqueue.Dispatcher
}

// Option customizes construction.
type Option func(*options)

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithDB uses an already open database. The container does not close it.
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithClock replaces time.Now for repositories and the cache.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithDispatcher replaces the HTTP dispatcher.
func WithDispatcher(d syncqueue.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// NewContainer wires every component from cfg. A configured backend URL makes
// the server credentials mandatory.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (c *Container, err error) {
	if cfg == nil {
		return nil, errors.New("di: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend.URL != "" {
		if err := cfg.RequireServer(); err != nil {
			return nil, err
		}
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c = &Container{cfg: cfg, registry: prometheus.NewRegistry()}
	if o.logger != nil {
		c.logger = *o.logger
	} else {
		c.logger = logging.New(cfg.Log)
	}
	c.logger = c.logger.With().Str("app", cfg.App.Name).Logger()
	c.metrics = metrics.New(c.registry)

	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if o.db != nil {
		c.db = o.db
	} else {
		if c.db, err = store.Open(ctx, cfg.Database, c.logger); err != nil {
			return nil, err
		}
		c.ownsDB = true
	}

	c.cacheService, err = cache.NewCacheService(cache.Config{
		MaxSize:         cfg.Cache.MaxSize,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		KeyPrefix:       cfg.Cache.KeyPrefix,
	}, cache.WithClock(o.clock), cache.WithMetrics(c.metrics), cache.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("di: cache: %w", err)
	}
	c.keySerializer = cache.NewDefaultKeySerializer()

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.Audit.Enabled
	auditCfg.BufferSize = cfg.Audit.BufferSize
	c.auditor = audit.NewEmitter(audit.NewBunSink(c.db), auditCfg,
		audit.WithLogger(c.logger), audit.WithMetrics(c.metrics), audit.WithClock(o.clock))

	areaCfg := cacheinfra.DefaultReadThroughConfig()
	if cfg.Cache.ReferenceTTL > 0 {
		areaCfg.TTL = cfg.Cache.ReferenceTTL
	}
	if c.areas, err = psgc.NewLookup(psgc.NewBunSource(c.db), areaCfg, c.logger); err != nil {
		return nil, err
	}

	residentBase, err := newBase(c, "residents", func() *registry.Resident { return &registry.Resident{} }, "id", o.clock)
	if err != nil {
		return nil, err
	}
	householdBase, err := newBase(c, "households", func() *registry.Household { return &registry.Household{} }, "code", o.clock)
	if err != nil {
		return nil, err
	}
	userBase, err := newBase(c, "auth_user_profiles", func() *registry.User { return &registry.User{} }, "email", o.clock)
	if err != nil {
		return nil, err
	}
	c.residents = registry.NewResidentRepository(residentBase, c.areas)
	c.households = registry.NewHouseholdRepository(householdBase)
	c.users = registry.NewUserRepository(userBase, c.areas)

	if err := c.buildSync(cfg, o); err != nil {
		return nil, err
	}
	return c, nil
}

// newBase stacks BaseRepository over the cache decorator over bun.
func newBase[T repository.Model](c *Container, table string, newRecord func() T, identifier string, clock func() time.Time) (*repository.BaseRepository[T], error) {
	cached := repositorycache.New[T](
		store.NewRepository(c.db, newRecord, identifier),
		c.cacheService,
		c.keySerializer,
		repositorycache.WithNamespace(table),
		repositorycache.WithLogger(c.logger),
	)
	return repository.NewBaseRepository(repository.Config[T]{
		Table:     table,
		Store:     cached,
		NewRecord: newRecord,
		Auditor:   c.auditor,
		Clock:     clock,
		Logger:    c.logger.With().Str("table", table).Logger(),
		Metrics:   c.metrics,
	})
}

func (c *Container) buildSync(cfg *config.Config, o options) error {
	var err error
	c.syncStore, err = syncqueue.OpenStore(syncqueue.StoreConfig{Path: cfg.Sync.QueuePath},
		syncqueue.WithStoreLogger(c.logger), syncqueue.WithStoreClock(o.clock))
	if err != nil {
		return err
	}
	c.monitor = syncqueue.NewMonitor(false, c.logger)

	switch {
	case o.dispatcher != nil:
		c.dispatcher = o.dispatcher
	case cfg.Backend.URL != "":
		tokens, err := syncqueue.NewJWTSource(cfg.Backend.SigningSecret(), cfg.Sync.Subject, string(config.LevelService), cfg.Sync.TokenTTL, nil)
		if err != nil {
			return err
		}
		anon, err := cfg.Backend.For(config.LevelAnon)
		if err != nil {
			return err
		}
		c.dispatcher, err = syncqueue.NewHTTPDispatcher(syncqueue.HTTPConfig{
			BaseURL: cfg.Backend.URL,
			APIKey:  anon,
			Tokens:  tokens,
			Timeout: cfg.Sync.RequestTimeout,
		}, syncqueue.WithDispatchLogger(c.logger), syncqueue.WithDispatchMetrics(c.metrics))
		if err != nil {
			return err
		}
	default:
		c.dispatcher = syncqueue.DispatcherFunc(func(context.Context, syncqueue.Item) error {
			return ErrNoBackend
		})
	}

	c.syncService, err = syncqueue.NewService(c.syncStore, c.dispatcher, c.monitor, syncqueue.Config{
		MaxRetries: cfg.Sync.MaxRetries,
		ItemDelay:  cfg.Sync.ItemDelay,
	}, syncqueue.WithServiceLogger(c.logger), syncqueue.WithServiceMetrics(c.metrics))
	return err
}

// Start runs the cache sweep and, when a backend is configured, the
// connectivity check. Both stop on Close or when ctx is done.
func (c *Container) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.cacheService.Start(ctx)
	}()

	if url := c.HealthURL(); url != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.monitor.Watch(ctx, nil, url, c.cfg.Sync.HealthInterval)
		}()
	}
}

// HealthURL is the health check target, or "" without a backend.
func (c *Container) HealthURL() string {
	if c.cfg.Backend.URL == "" {
		return ""
	}
	return strings.TrimRight(c.cfg.Backend.URL, "/") + c.cfg.Sync.HealthPath
}

// Migrate creates the schema.
func (c *Container) Migrate(ctx context.Context) error {
	return store.Migrate(ctx, c.db, c.logger)
}

func (c *Container) Config() *config.Config                    { return c.cfg }
func (c *Container) Logger() zerolog.Logger                    { return c.logger }
func (c *Container) Registry() *prometheus.Registry            { return c.registry }
func (c *Container) Metrics() *metrics.Metrics                 { return c.metrics }
func (c *Container) DB() *bun.DB                               { return c.db }
func (c *Container) CacheService() cache.CacheService          { return c.cacheService }
func (c *Container) KeySerializer() cache.KeySerializer        { return c.keySerializer }
func (c *Container) Auditor() *audit.Emitter                   { return c.auditor }
func (c *Container) Areas() *psgc.Lookup                       { return c.areas }
func (c *Container) Residents() *registry.ResidentRepository   { return c.residents }
func (c *Container) Households() *registry.HouseholdRepository { return c.households }
func (c *Container) Users() *registry.UserRepository           { return c.users }
func (c *Container) SyncStore() *syncqueue.Store               { return c.syncStore }
func (c *Container) Monitor() *syncqueue.Monitor               { return c.monitor }
func (c *Container) Sync() *syncqueue.Service                  { return c.syncService }

// Close stops background work, drains the sync service and the audit buffer,
// then closes the queue and the database. Safe to call more than once.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		var errs []error
		if c.syncService != nil {
			c.syncService.Close()
		}
		if c.auditor != nil {
			errs = append(errs, c.auditor.Close())
		}
		if c.syncStore != nil {
			errs = append(errs, c.syncStore.Close())
		}
		if c.db != nil && c.ownsDB {
			errs = append(errs, c.db.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
