package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	prefixItem = "item:"
	prefixID   = "id:"
	seqKey     = "meta:seq"
)

// StoreConfig configures the badger database.
type StoreConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// Stats summarizes the queue.
type Stats struct {
	Pending int       `json:"pending"`
	Stuck   int       `json:"stuck"`
	Oldest  time.Time `json:"oldest,omitempty"`
}

// Store is the durable queue. Items live under "item:<seq>" so iteration is
// FIFO; "id:<id>" maps an id to its item key.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock sets the clock used for timestamps.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// OpenStore opens or creates the queue database.
func OpenStore(cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("syncqueue: store path is required")
	}

	bopts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		bopts = bopts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("syncqueue: sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("sync queue opened")
	return s, nil
}

func itemKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixItem, seq))
}

func idKey(id string) []byte {
	return []byte(prefixID + id)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Enqueue validates item, assigns its id, sequence and timestamps and
// persists it.
func (s *Store) Enqueue(ctx context.Context, item Item) (Item, error) {
	if err := s.checkOpen(); err != nil {
		return Item{}, err
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}

	next, err := s.seq.Next()
	if err != nil {
		return Item{}, fmt.Errorf("syncqueue: next sequence: %w", err)
	}
	// badger sequences start at 0; keep 0 meaning "unassigned"
	item.Seq = next + 1
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	item.RetryCount, item.LastError = 0, ""

	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("syncqueue: marshal item: %w", err)
	}
	key := itemKey(item.Seq)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(idKey(item.ID)); err == nil {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidItem, item.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(item.ID), key)
	})
	if err != nil {
		return Item{}, fmt.Errorf("syncqueue: enqueue: %w", err)
	}
	return item, nil
}

// Pending returns every queued item, oldest first, including stuck ones.
func (s *Store) Pending(ctx context.Context) ([]Item, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixItem)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable sync item")
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncqueue: list pending: %w", err)
	}
	return items, nil
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	if err := s.checkOpen(); err != nil {
		return Item{}, err
	}
	var item Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, _, err = load(txn, id)
		return err
	})
	return item, err
}

func load(txn *badger.Txn, id string) (Item, []byte, error) {
	ref, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Item{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, nil, err
	}
	key, err := ref.ValueCopy(nil)
	if err != nil {
		return Item{}, nil, err
	}

	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Item{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, nil, err
	}
	var item Item
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	})
	return item, key, err
}

// Complete removes a delivered item.
func (s *Store) Complete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, key, err := load(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
}

// MarkFailed increments the retry count and records cause.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) (Item, error) {
	return s.modify(id, func(item *Item) {
		item.RetryCount++
		if cause != nil {
			item.LastError = cause.Error()
		}
	})
}

// Reset clears the retry count so a stuck item is dispatched again.
func (s *Store) Reset(ctx context.Context, id string) (Item, error) {
	return s.modify(id, func(item *Item) {
		item.RetryCount = 0
		item.LastError = ""
	})
}

func (s *Store) modify(id string, fn func(*Item)) (Item, error) {
	if err := s.checkOpen(); err != nil {
		return Item{}, err
	}
	var item Item
	err := s.db.Update(func(txn *badger.Txn) error {
		current, key, err := load(txn, id)
		if err != nil {
			return err
		}
		fn(&current)
		current.UpdatedAt = s.now().UTC()

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		item = current
		return txn.Set(key, data)
	})
	return item, err
}

// Stats counts pending and stuck items.
func (s *Store) Stats(ctx context.Context, maxRetries int) (Stats, error) {
	items, err := s.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Pending: len(items)}
	for i, item := range items {
		if i == 0 {
			st.Oldest = item.CreatedAt
		}
		if item.Stuck(maxRetries) {
			st.Stuck++
		}
	}
	return st, nil
}

// Close releases the sequence lease and closes badger. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
