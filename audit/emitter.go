package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-barangay-registry/internal/logging"
	"github.com/goliatone/go-barangay-registry/internal/metrics"
)

// Outcome is what happened to an emitted record. It is reported to observers
// only; callers of Emit never see it.
type Outcome string

const (
	OutcomeStored  Outcome = "stored"
	OutcomeFailed  Outcome = "failed"
	OutcomeDropped Outcome = "dropped"
)

// Observer receives the outcome of every record handed to Emit.
type Observer func(rec *Record, outcome Outcome, err error)

// Config holds configuration for the emitter.
type Config struct {
	// Enabled turns emission on. A disabled emitter discards records silently.
	Enabled bool

	// BufferSize is the size of the async write buffer. A full buffer drops records.
	BufferSize int

	// StoreTimeout bounds each sink write.
	StoreTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		BufferSize:   256,
		StoreTimeout: 5 * time.Second,
	}
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithObserver adds an observer. Observers run on the writer goroutine, or on
// the caller's goroutine for dropped records, and must not block.
func WithObserver(observer Observer) Option {
	return func(e *Emitter) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// WithLogger sets the logger used by the default observer.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithMetrics counts outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

type job struct {
	ctx context.Context
	rec *Record
}

// Emitter hands audit records to a Sink on a background goroutine. Emit never
// blocks and never fails.
type Emitter struct {
	cfg       Config
	sink      Sink
	jobs      chan job
	stop      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	observers []Observer
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewEmitter starts the writer goroutine. Call Close to drain and stop it.
func NewEmitter(sink Sink, cfg Config, opts ...Option) *Emitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}

	e := &Emitter{
		cfg:    cfg,
		sink:   sink,
		jobs:   make(chan job, cfg.BufferSize),
		stop:   make(chan struct{}),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// Emit fills defaults on rec and queues it. A nil or disabled emitter is a no-op.
func (e *Emitter) Emit(ctx context.Context, rec Record) {
	if e == nil || !e.cfg.Enabled {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.now()
	}
	if rec.UserID == "" {
		rec.UserID = SystemUser
	}
	if rec.Severity == "" {
		rec.Severity = SeverityLow
	}
	if rec.CorrelationID == "" {
		rec.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.observe(&rec, OutcomeDropped, nil)
		return
	}

	select {
	case e.jobs <- job{ctx: context.WithoutCancel(ctx), rec: &rec}:
	default:
		e.observe(&rec, OutcomeDropped, nil)
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stop:
			for {
				select {
				case j := <-e.jobs:
					e.write(j)
				default:
					return
				}
			}
		case j := <-e.jobs:
			e.write(j)
		}
	}
}

func (e *Emitter) write(j job) {
	if e.sink == nil {
		e.observe(j.rec, OutcomeDropped, nil)
		return
	}

	ctx, cancel := context.WithTimeout(j.ctx, e.cfg.StoreTimeout)
	defer cancel()

	if err := e.sink.Store(ctx, j.rec); err != nil {
		e.observe(j.rec, OutcomeFailed, err)
		return
	}
	e.observe(j.rec, OutcomeStored, nil)
}

func (e *Emitter) observe(rec *Record, outcome Outcome, err error) {
	e.metrics.AuditOutcome(string(outcome))

	switch outcome {
	case OutcomeStored:
		e.logger.Debug().Str("action", rec.Action).Str("audit_id", rec.ID.String()).Msg("audit record stored")
	case OutcomeFailed:
		e.logger.Warn().Err(err).Str("action", rec.Action).Str("audit_id", rec.ID.String()).Msg("audit record not stored")
	case OutcomeDropped:
		e.logger.Warn().Str("action", rec.Action).Str("audit_id", rec.ID.String()).Msg("audit buffer full or closed, record dropped")
	}

	for _, observer := range e.observers {
		observer(rec, outcome, err)
	}
}

// Close stops accepting records, drains the buffer and waits for the writer.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		close(e.stop)
		e.wg.Wait()
	})
	return nil
}
