package testsupport

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identified is the constraint FakeStore needs from a record.
type Identified interface {
	GetID() uuid.UUID
}

// FakeStore is an in-memory bunrepo.Repository. Records are keyed by id and
// kept in insertion order. Select criteria cannot be evaluated without a
// database, so List and Count return every record unless ListFunc or
// CountFunc is set; the rendered SQL of the last call is kept in LastSQL.
type FakeStore[T Identified] struct {
	mu      sync.Mutex
	table   string
	order   []uuid.UUID
	records map[uuid.UUID]T
	calls   map[string]int

	// Errors makes the named method ("Create", "GetByID", ...) fail.
	Errors map[string]error

	ListFunc  func(sql string) ([]T, int, error)
	CountFunc func(sql string) (int, error)

	LastSQL string
}

// NewFakeStore returns an empty store. table is only used for rendered SQL.
func NewFakeStore[T Identified](table string) *FakeStore[T] {
	return &FakeStore[T]{
		table:   table,
		records: make(map[uuid.UUID]T),
		calls:   make(map[string]int),
		Errors:  make(map[string]error),
	}
}

var _ bunrepo.Repository[Identified] = (*FakeStore[Identified])(nil)

// Seed inserts records without counting calls.
func (s *FakeStore[T]) Seed(records ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.putLocked(r)
	}
}

// All returns the stored records in insertion order.
func (s *FakeStore[T]) All() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Calls returns how many times method was called.
func (s *FakeStore[T]) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// SQL returns the last rendered query.
func (s *FakeStore[T]) SQL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastSQL
}

func (s *FakeStore[T]) enter(method string) error {
	s.calls[method]++
	return s.Errors[method]
}

func (s *FakeStore[T]) putLocked(r T) {
	id := r.GetID()
	if _, ok := s.records[id]; !ok {
		s.order = append(s.order, id)
	}
	s.records[id] = r
}

func (s *FakeStore[T]) removeLocked(id uuid.UUID) {
	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *FakeStore[T]) Get(ctx context.Context, criteria ...bunrepo.SelectCriteria) (T, error) {
	records, _, err := s.list("Get", criteria)
	if err != nil || len(records) == 0 {
		var zero T
		if err == nil {
			err = sql.ErrNoRows
		}
		return zero, err
	}
	return records[0], nil
}

func (s *FakeStore[T]) GetByID(ctx context.Context, id string, criteria ...bunrepo.SelectCriteria) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if err := s.enter("GetByID"); err != nil {
		return zero, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return zero, err
	}
	r, ok := s.records[uid]
	if !ok {
		return zero, sql.ErrNoRows
	}
	return r, nil
}

func (s *FakeStore[T]) List(ctx context.Context, criteria ...bunrepo.SelectCriteria) ([]T, int, error) {
	return s.list("List", criteria)
}

func (s *FakeStore[T]) list(method string, criteria []bunrepo.SelectCriteria) ([]T, int, error) {
	rendered := RenderList(s.table, criteria...)

	s.mu.Lock()
	if err := s.enter(method); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	s.LastSQL = rendered
	fn := s.ListFunc
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(rendered)
	}
	return out, len(out), nil
}

func (s *FakeStore[T]) Count(ctx context.Context, criteria ...bunrepo.SelectCriteria) (int, error) {
	rendered := RenderSelect(s.table, criteria...)

	s.mu.Lock()
	if err := s.enter("Count"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.LastSQL = rendered
	fn := s.CountFunc
	n := len(s.records)
	s.mu.Unlock()

	if fn != nil {
		return fn(rendered)
	}
	return n, nil
}

func (s *FakeStore[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...bunrepo.SelectCriteria) (T, error) {
	return s.Get(ctx, criteria...)
}

func (s *FakeStore[T]) Create(ctx context.Context, record T, criteria ...bunrepo.InsertCriteria) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Create"); err != nil {
		var zero T
		return zero, err
	}
	if _, exists := s.records[record.GetID()]; exists {
		var zero T
		return zero, &duplicateError{id: record.GetID()}
	}
	s.putLocked(record)
	return record, nil
}

func (s *FakeStore[T]) CreateMany(ctx context.Context, records []T, criteria ...bunrepo.InsertCriteria) ([]T, error) {
	for _, r := range records {
		if _, err := s.Create(ctx, r, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *FakeStore[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	s.mu.Lock()
	existing, ok := s.records[record.GetID()]
	s.mu.Unlock()
	if ok {
		return existing, nil
	}
	return s.Create(ctx, record)
}

func (s *FakeStore[T]) Update(ctx context.Context, record T, criteria ...bunrepo.UpdateCriteria) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if err := s.enter("Update"); err != nil {
		return zero, err
	}
	if _, ok := s.records[record.GetID()]; !ok {
		return zero, sql.ErrNoRows
	}
	s.putLocked(record)
	return record, nil
}

func (s *FakeStore[T]) UpdateMany(ctx context.Context, records []T, criteria ...bunrepo.UpdateCriteria) ([]T, error) {
	for _, r := range records {
		if _, err := s.Update(ctx, r, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *FakeStore[T]) Upsert(ctx context.Context, record T, criteria ...bunrepo.UpdateCriteria) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Upsert"); err != nil {
		var zero T
		return zero, err
	}
	s.putLocked(record)
	return record, nil
}

func (s *FakeStore[T]) UpsertMany(ctx context.Context, records []T, criteria ...bunrepo.UpdateCriteria) ([]T, error) {
	for _, r := range records {
		if _, err := s.Upsert(ctx, r, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *FakeStore[T]) Delete(ctx context.Context, record T) error {
	return s.remove("Delete", record)
}

func (s *FakeStore[T]) ForceDelete(ctx context.Context, record T) error {
	return s.remove("ForceDelete", record)
}

func (s *FakeStore[T]) remove(method string, record T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(method); err != nil {
		return err
	}
	s.removeLocked(record.GetID())
	return nil
}

// DeleteMany and DeleteWhere clear the store; criteria are not evaluated.
func (s *FakeStore[T]) DeleteMany(ctx context.Context, criteria ...bunrepo.DeleteCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteMany"); err != nil {
		return err
	}
	s.records = make(map[uuid.UUID]T)
	s.order = nil
	return nil
}

func (s *FakeStore[T]) DeleteWhere(ctx context.Context, criteria ...bunrepo.DeleteCriteria) error {
	return s.DeleteMany(ctx, criteria...)
}

func (s *FakeStore[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return nil, nil
}

// Tx variants ignore the transaction.

func (s *FakeStore[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...bunrepo.SelectCriteria) (T, error) {
	return s.Get(ctx, criteria...)
}
func (s *FakeStore[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...bunrepo.SelectCriteria) (T, error) {
	return s.GetByID(ctx, id, criteria...)
}
func (s *FakeStore[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...bunrepo.SelectCriteria) ([]T, int, error) {
	return s.List(ctx, criteria...)
}
func (s *FakeStore[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...bunrepo.SelectCriteria) (int, error) {
	return s.Count(ctx, criteria...)
}
func (s *FakeStore[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...bunrepo.SelectCriteria) (T, error) {
	return s.GetByIdentifier(ctx, identifier, criteria...)
}
func (s *FakeStore[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...bunrepo.InsertCriteria) (T, error) {
	return s.Create(ctx, record, criteria...)
}
func (s *FakeStore[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...bunrepo.InsertCriteria) ([]T, error) {
	return s.CreateMany(ctx, records, criteria...)
}
func (s *FakeStore[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return s.GetOrCreate(ctx, record)
}
func (s *FakeStore[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...bunrepo.UpdateCriteria) (T, error) {
	return s.Update(ctx, record, criteria...)
}
func (s *FakeStore[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...bunrepo.UpdateCriteria) ([]T, error) {
	return s.UpdateMany(ctx, records, criteria...)
}
func (s *FakeStore[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...bunrepo.UpdateCriteria) (T, error) {
	return s.Upsert(ctx, record, criteria...)
}
func (s *FakeStore[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...bunrepo.UpdateCriteria) ([]T, error) {
	return s.UpsertMany(ctx, records, criteria...)
}
func (s *FakeStore[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return s.Delete(ctx, record)
}
func (s *FakeStore[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...bunrepo.DeleteCriteria) error {
	return s.DeleteMany(ctx, criteria...)
}
func (s *FakeStore[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...bunrepo.DeleteCriteria) error {
	return s.DeleteWhere(ctx, criteria...)
}
func (s *FakeStore[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return s.ForceDelete(ctx, record)
}
func (s *FakeStore[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return s.Raw(ctx, sql, args...)
}
func (s *FakeStore[T]) Handlers() bunrepo.ModelHandlers[T] {
	return bunrepo.ModelHandlers[T]{}
}

// duplicateError mimics the sqlite unique constraint message.
type duplicateError struct {
	id uuid.UUID
}

func (e *duplicateError) Error() string {
	return "UNIQUE constraint failed: id " + strings.ToLower(e.id.String())
}
