package repository

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-barangay-registry/audit"
	"github.com/goliatone/go-barangay-registry/internal/logging"
	"github.com/goliatone/go-barangay-registry/internal/metrics"
	"github.com/goliatone/go-barangay-registry/repositorycache"
)

// Model is what BaseRepository needs from a record. Implement it on the
// pointer type.
type Model interface {
	GetID() uuid.UUID
	SetID(uuid.UUID)
	SetUpdatedAt(time.Time)
}

type createdAtSetter interface {
	SetCreatedAt(time.Time)
}

// Config wires a BaseRepository.
type Config[T Model] struct {
	// Table is used for audit action names and metrics labels.
	Table string

	// Store is the underlying repository, usually a go-repository-bun
	// repository wrapped in repositorycache.
	Store bunrepo.Repository[T]

	// NewRecord returns an empty record, e.g. func() *Resident { return &Resident{} }.
	NewRecord func() T

	// Auditor receives one record per operation. Nil disables auditing.
	Auditor *audit.Emitter

	// Actor is the fallback when the context carries none.
	Actor audit.Actor

	Clock   func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// BaseRepository implements the generic operations shared by every registry
// table. No method returns a Go error: failures come back as Result.Error.
type BaseRepository[T Model] struct {
	table     string
	store     bunrepo.Repository[T]
	newRecord func() T
	auditor   *audit.Emitter
	actor     audit.Actor
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewBaseRepository validates cfg.
func NewBaseRepository[T Model](cfg Config[T]) (*BaseRepository[T], error) {
	if cfg.Table == "" {
		return nil, errors.New("repository: table is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("repository: store is required")
	}
	if cfg.NewRecord == nil {
		return nil, errors.New("repository: NewRecord is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &BaseRepository[T]{
		table:     cfg.Table,
		store:     cfg.Store,
		newRecord: cfg.NewRecord,
		auditor:   cfg.Auditor,
		actor:     cfg.Actor,
		now:       cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Table returns the table name.
func (b *BaseRepository[T]) Table() string {
	return b.table
}

// Now returns the repository clock.
func (b *BaseRepository[T]) Now() time.Time {
	return b.now()
}

// call describes one operation for auditing.
type call struct {
	operation  string
	resourceID string
	severity   audit.Severity
	details    map[string]any
}

// run executes fn, recovering panics and mapping errors, then records metrics
// and hands an audit record to the emitter.
func run[T Model, R any](ctx context.Context, b *BaseRepository[T], c *call, fn func(ctx context.Context) (R, int, error)) (res Result[R]) {
	start := time.Now()

	defer func() {
		if v := recover(); v != nil {
			logging.Ctx(ctx, b.logger).Error().
				Str("table", b.table).
				Str("operation", c.operation).
				Interface("panic", v).
				Msg("repository operation panicked")
			res = Fail[R](mapPanic(v))
		}
		b.finish(ctx, c, res.Error, time.Since(start))
	}()

	data, count, err := fn(ctx)
	if err != nil {
		return Fail[R](MapError(err))
	}
	return OkCount(data, count)
}

func (b *BaseRepository[T]) finish(ctx context.Context, c *call, failure *Error, elapsed time.Duration) {
	code := "OK"
	if failure != nil {
		code = string(failure.Code)
	}
	b.metrics.ObserveRepository(b.table, c.operation, code, elapsed)

	logger := logging.Ctx(ctx, b.logger)
	if failure != nil {
		logger.Warn().
			Str("table", b.table).
			Str("operation", c.operation).
			Str("resource_id", c.resourceID).
			Str("code", code).
			Str("error", failure.Message).
			Msg("repository operation failed")
	} else {
		logger.Debug().
			Str("table", b.table).
			Str("operation", c.operation).
			Str("resource_id", c.resourceID).
			Dur("elapsed", elapsed).
			Msg("repository operation")
	}

	b.emit(ctx, c, failure)
}

func (b *BaseRepository[T]) emit(ctx context.Context, c *call, failure *Error) {
	if b.auditor == nil {
		return
	}

	actor, _ := audit.ActorFrom(ctx)
	actor = actor.Or(b.actor)

	severity := c.severity
	if severity == "" {
		severity = audit.SeverityLow
		if failure != nil {
			severity = audit.SeverityMedium
		}
	}

	details := make(map[string]any, len(c.details)+2)
	for k, v := range c.details {
		details[k] = v
	}
	if failure != nil {
		details["error_code"] = failure.Code
		details["error_message"] = failure.Message
	}

	b.auditor.Emit(ctx, audit.Record{
		Action:       audit.Action(b.table, c.operation),
		UserID:       actor.UserID,
		ResourceType: b.table,
		ResourceID:   c.resourceID,
		Severity:     severity,
		Success:      failure == nil,
		Details:      details,
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	})
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ValidationError("id", "invalid id format", map[string]string{"id": id})
	}
	return uid, nil
}

func (b *BaseRepository[T]) queryContext(ctx context.Context, operation string, spec Spec) context.Context {
	return repositorycache.WithQueryKey(ctx, b.table+":"+operation+":"+spec.Key())
}

// FindByID loads one record.
func (b *BaseRepository[T]) FindByID(ctx context.Context, id string) Result[T] {
	return run(ctx, b, &call{operation: "find_by_id", resourceID: id}, func(ctx context.Context) (T, int, error) {
		var zero T
		if _, err := parseID(id); err != nil {
			return zero, 0, err
		}
		record, err := b.store.GetByID(ctx, id)
		if err != nil {
			return zero, 0, err
		}
		return record, 0, nil
	})
}

// FindAll returns a page of records matching opts and the total match count.
func (b *BaseRepository[T]) FindAll(ctx context.Context, opts QueryOptions) Result[[]T] {
	return b.list(ctx, "find_all", opts.Spec())
}

// ExecuteQuery runs a typed spec with the same audit and error handling as
// the built-in operations. operation names the query in audit records.
func (b *BaseRepository[T]) ExecuteQuery(ctx context.Context, spec Spec, operation string) Result[[]T] {
	if operation == "" {
		operation = "query"
	}
	return b.list(ctx, operation, spec)
}

func (b *BaseRepository[T]) list(ctx context.Context, operation string, spec Spec) Result[[]T] {
	c := &call{operation: operation, details: map[string]any{"limit": spec.Limit, "offset": spec.Offset}}
	return run(ctx, b, c, func(ctx context.Context) ([]T, int, error) {
		if err := spec.Validate(); err != nil {
			return nil, 0, err
		}
		records, total, err := b.store.List(b.queryContext(ctx, operation, spec), spec.Criteria()...)
		if err != nil {
			return nil, 0, err
		}
		if records == nil {
			records = []T{}
		}
		return records, total, nil
	})
}

// Create inserts record, assigning an id and timestamps, and returns the stored row.
func (b *BaseRepository[T]) Create(ctx context.Context, record T) Result[T] {
	c := &call{operation: "create"}
	return run(ctx, b, c, func(ctx context.Context) (T, int, error) {
		if record.GetID() == uuid.Nil {
			record.SetID(uuid.New())
		}
		now := b.now()
		if s, ok := any(record).(createdAtSetter); ok {
			s.SetCreatedAt(now)
		}
		record.SetUpdatedAt(now)
		c.resourceID = record.GetID().String()

		created, err := b.store.Create(ctx, record)
		if err != nil {
			var zero T
			return zero, 0, err
		}
		return created, 0, nil
	})
}

// Update merges changes into the stored row, stamps updated_at and writes it.
// Keys in changes are JSON field names; id and created_at are ignored.
func (b *BaseRepository[T]) Update(ctx context.Context, id string, changes map[string]any) Result[T] {
	c := &call{operation: "update", resourceID: id, details: map[string]any{"fields": changedFields(changes)}}
	return run(ctx, b, c, func(ctx context.Context) (T, int, error) {
		var zero T
		uid, err := parseID(id)
		if err != nil {
			return zero, 0, err
		}

		existing, err := b.store.GetByID(ctx, id)
		if err != nil {
			return zero, 0, err
		}

		merged, err := b.Merge(existing, changes)
		if err != nil {
			return zero, 0, err
		}
		merged.SetID(uid)
		merged.SetUpdatedAt(b.now())

		updated, err := b.store.Update(ctx, merged, fullUpdate(merged))
		if err != nil {
			return zero, 0, err
		}
		return updated, 0, nil
	})
}

// Merge returns a new record holding existing with changes applied. existing
// is not modified.
func (b *BaseRepository[T]) Merge(existing T, changes map[string]any) (T, error) {
	var zero T

	raw, err := json.Marshal(existing)
	if err != nil {
		return zero, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, err
	}
	for k, v := range changes {
		if k == "id" || k == "created_at" {
			continue
		}
		fields[k] = v
	}

	raw, err = json.Marshal(fields)
	if err != nil {
		return zero, err
	}
	merged := b.newRecord()
	if err := json.Unmarshal(raw, merged); err != nil {
		return zero, ValidationError("", "changes do not match record shape: "+err.Error(), nil)
	}
	return merged, nil
}

func changedFields(changes map[string]any) []string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	return fields
}

// Save writes a full record, stamping updated_at. Domain repositories use it
// after their own merge and validation.
func (b *BaseRepository[T]) Save(ctx context.Context, record T, operation string) Result[T] {
	if operation == "" {
		operation = "update"
	}
	c := &call{operation: operation, resourceID: record.GetID().String()}
	return run(ctx, b, c, func(ctx context.Context) (T, int, error) {
		record.SetUpdatedAt(b.now())
		updated, err := b.store.Update(ctx, record, fullUpdate(record))
		if err != nil {
			var zero T
			return zero, 0, err
		}
		return updated, 0, nil
	})
}

// Delete removes the row permanently.
func (b *BaseRepository[T]) Delete(ctx context.Context, id string) Result[bool] {
	c := &call{operation: "delete", resourceID: id, severity: audit.SeverityHigh}
	return run(ctx, b, c, func(ctx context.Context) (bool, int, error) {
		uid, err := parseID(id)
		if err != nil {
			return false, 0, err
		}
		record := b.newRecord()
		record.SetID(uid)
		if err := b.store.ForceDelete(ctx, record); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	})
}

// Count returns how many rows match the equality filters.
func (b *BaseRepository[T]) Count(ctx context.Context, filters map[string]any) Result[int] {
	return b.CountQuery(ctx, Spec{Conditions: filterConditions(filters)}, "count")
}

// CountQuery counts rows matching spec. Ordering and paging are ignored.
func (b *BaseRepository[T]) CountQuery(ctx context.Context, spec Spec, operation string) Result[int] {
	spec.OrderBy, spec.Limit, spec.Offset = "", 0, 0
	return run(ctx, b, &call{operation: operation}, func(ctx context.Context) (int, int, error) {
		if err := spec.Validate(); err != nil {
			return 0, 0, err
		}
		n, err := b.store.Count(b.queryContext(ctx, operation, spec), spec.Criteria()...)
		if err != nil {
			return 0, 0, err
		}
		return n, 0, nil
	})
}

// Exists reports whether a row with id exists. A missing row, or an id that
// cannot exist, is Ok(false) rather than NOT_FOUND.
func (b *BaseRepository[T]) Exists(ctx context.Context, id string) Result[bool] {
	return run(ctx, b, &call{operation: "exists", resourceID: id}, func(ctx context.Context) (bool, int, error) {
		uid, err := uuid.Parse(id)
		if err != nil {
			return false, 0, nil
		}
		spec := Spec{Conditions: []Condition{Eq("id", uid)}}
		n, err := b.store.Count(b.queryContext(ctx, "exists", spec), spec.Criteria()...)
		if err != nil {
			if MapError(err).Code == CodeNotFound {
				return false, 0, nil
			}
			return false, 0, err
		}
		return n > 0, 0, nil
	})
}
