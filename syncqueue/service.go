package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-barangay-registry/internal/metrics"
)

// Queue is the persistence the Service needs. *Store implements it.
type Queue interface {
	Enqueue(ctx context.Context, item Item) (Item, error)
	Pending(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Complete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) (Item, error)
	Reset(ctx context.Context, id string) (Item, error)
}

// Config holds Service settings.
type Config struct {
	// MaxRetries is how many failed attempts an item gets before it is
	// stuck. Default 3.
	MaxRetries int

	// ItemDelay is the pause between two dispatches. Default 1s.
	ItemDelay time.Duration
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, ItemDelay: time.Second}
}

// Report describes one ProcessQueue run.
type Report struct {
	// Skipped is set when another run was already in progress.
	Skipped bool `json:"skipped"`

	// StoppedOffline is set when connectivity dropped mid-run.
	StoppedOffline bool `json:"stopped_offline"`

	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Status is a snapshot for operators.
type Status struct {
	Online     bool      `json:"online"`
	Processing bool      `json:"processing"`
	Pending    int       `json:"pending"`
	Stuck      int       `json:"stuck"`
	Oldest     time.Time `json:"oldest,omitempty"`
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Service replays queued mutations when the backend is reachable.
type Service struct {
	queue      Queue
	dispatcher Dispatcher
	monitor    *Monitor
	cfg        Config
	sleep      Sleeper
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	processing atomic.Bool
	// dirty is set when work arrives; a finishing run that sees it starts
	// another so nothing queued during its last read is stranded.
	dirty atomic.Bool
	wg    sync.WaitGroup

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSleeper replaces the inter-item wait, for tests.
func WithSleeper(sleep Sleeper) ServiceOption {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the queue to the dispatcher. Going online starts a drain
// in the background; call Close to stop listening and wait for it.
func NewService(queue Queue, dispatcher Dispatcher, monitor *Monitor, cfg Config, opts ...ServiceOption) (*Service, error) {
	if queue == nil || dispatcher == nil || monitor == nil {
		return nil, errors.New("syncqueue: queue, dispatcher and monitor are required")
	}
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = def.ItemDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		queue:      queue,
		dispatcher: dispatcher,
		monitor:    monitor,
		cfg:        cfg,
		sleep:      sleepContext,
		logger:     zerolog.Nop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = monitor.Subscribe(func(online bool) {
		if online {
			s.logger.Info().Msg("back online, draining sync queue")
			s.kick()
			return
		}
		s.logger.Info().Msg("offline, sync queue paused")
	})
	return s, nil
}

// AddToQueue persists a mutation. data is marshaled to JSON. When online and
// no run is active, a drain starts in the background.
func (s *Service) AddToQueue(ctx context.Context, action Action, typ ResourceType, resourceKey string, data any) (Item, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Item{}, fmt.Errorf("syncqueue: marshal data: %w", err)
		}
		raw = b
	}

	item, err := s.queue.Enqueue(ctx, Item{Action: action, Type: typ, ResourceKey: resourceKey, Data: raw})
	if err != nil {
		return Item{}, err
	}
	s.logger.Debug().Str("item", item.ID).Str("action", string(action)).Str("type", string(typ)).Msg("queued for sync")
	s.publishDepth(ctx)
	s.requestRun()
	return item, nil
}

func (s *Service) requestRun() {
	s.dirty.Store(true)
	if s.monitor.Online() && !s.processing.Load() {
		s.kick()
	}
}

func (s *Service) kick() {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report, err := s.ProcessQueue(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("background sync run failed")
			return
		}
		if !report.Skipped {
			s.logger.Info().Int("synced", report.Synced).Int("failed", report.Failed).Bool("stopped_offline", report.StoppedOffline).Msg("sync run finished")
		}
	}()
}

// ProcessQueue dispatches eligible items oldest first, pausing ItemDelay
// between dispatches. Only one run is active at a time; a concurrent call
// returns a Skipped report. Each item is attempted at most once per run and
// items queued during the run are picked up before it ends. The run stops
// early when the monitor goes offline.
func (s *Service) ProcessQueue(ctx context.Context) (Report, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return Report{Skipped: true}, nil
	}
	defer func() {
		s.processing.Store(false)
		if s.dirty.Swap(false) && s.monitor.Online() {
			s.kick()
		}
	}()
	defer s.publishDepth(context.WithoutCancel(ctx))

	var report Report
	attempted := make(map[string]bool)
	dispatched := 0

	for {
		if !s.monitor.Online() {
			report.StoppedOffline = true
			return report, nil
		}

		s.dirty.Store(false)
		pending, err := s.queue.Pending(ctx)
		if err != nil {
			return report, err
		}
		batch := pending[:0]
		for _, item := range pending {
			if !attempted[item.ID] && !item.Stuck(s.cfg.MaxRetries) {
				batch = append(batch, item)
			}
		}
		if len(batch) == 0 {
			return report, nil
		}

		for _, item := range batch {
			if dispatched > 0 {
				if err := s.sleep(ctx, s.cfg.ItemDelay); err != nil {
					return report, err
				}
			}
			if !s.monitor.Online() {
				report.StoppedOffline = true
				return report, nil
			}

			attempted[item.ID] = true
			dispatched++
			if err := s.deliver(ctx, item); err != nil {
				report.Failed++
				continue
			}
			report.Synced++
		}
	}
}

func (s *Service) deliver(ctx context.Context, item Item) error {
	err := s.dispatcher.Dispatch(ctx, item)
	if err == nil {
		if cerr := s.queue.Complete(ctx, item.ID); cerr != nil {
			s.logger.Error().Err(cerr).Str("item", item.ID).Msg("dispatched item could not be removed")
		}
		return nil
	}

	failed, merr := s.queue.MarkFailed(context.WithoutCancel(ctx), item.ID, err)
	if merr != nil {
		s.logger.Error().Err(merr).Str("item", item.ID).Msg("could not record sync failure")
		return err
	}
	event := s.logger.Warn()
	if failed.Stuck(s.cfg.MaxRetries) {
		event = s.logger.Error().Bool("stuck", true)
	}
	event.Err(err).Str("item", item.ID).Int("retry_count", failed.RetryCount).Msg("sync item failed")
	return err
}

// Wait blocks until background runs started so far have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Processing reports whether a run is active.
func (s *Service) Processing() bool {
	return s.processing.Load()
}

// Stuck lists items that reached MaxRetries. They stay queued until Retry or
// manual removal.
func (s *Service) Stuck(ctx context.Context) ([]Item, error) {
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	var stuck []Item
	for _, item := range pending {
		if item.Stuck(s.cfg.MaxRetries) {
			stuck = append(stuck, item)
		}
	}
	return stuck, nil
}

// Retry resets an item's retry count so the next run dispatches it, and
// starts a run when online.
func (s *Service) Retry(ctx context.Context, id string) (Item, error) {
	item, err := s.queue.Reset(ctx, id)
	if err != nil {
		return Item{}, err
	}
	s.logger.Info().Str("item", id).Msg("sync item reset for retry")
	s.publishDepth(ctx)
	s.requestRun()
	return item, nil
}

// Discard removes an item without dispatching it.
func (s *Service) Discard(ctx context.Context, id string) error {
	if err := s.queue.Complete(ctx, id); err != nil {
		return err
	}
	s.logger.Warn().Str("item", id).Msg("sync item discarded")
	s.publishDepth(ctx)
	return nil
}

// Status reports connectivity and queue counts.
func (s *Service) Status(ctx context.Context) (Status, error) {
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Online: s.monitor.Online(), Processing: s.processing.Load(), Pending: len(pending)}
	for i, item := range pending {
		if i == 0 {
			st.Oldest = item.CreatedAt
		}
		if item.Stuck(s.cfg.MaxRetries) {
			st.Stuck++
		}
	}
	return st, nil
}

func (s *Service) publishDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	st, err := s.Status(ctx)
	if err != nil {
		return
	}
	s.metrics.SyncQueueDepth(st.Pending, st.Stuck)
}

// Close stops reacting to connectivity changes, cancels background runs and
// waits for them.
func (s *Service) Close() {
	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
}
