// Package store opens the registry database through bun and creates its
// schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-barangay-registry/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrSQLiteUnavailable is returned when the binary was built without cgo.
var ErrSQLiteUnavailable = errors.New("store: sqlite support requires cgo")

// Open connects to the configured database and pings it.
func Open(ctx context.Context, cfg config.Database, logger zerolog.Logger) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = openPostgres(cfg.URL)
	case DriverSQLite:
		db, err = openSQLite(cfg.URL)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && cfg.Driver == DriverPostgres {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if cfg.Debug {
		db.AddQueryHook(&queryLogger{logger: logger})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", cfg.Driver, err)
	}
	logger.Info().Str("driver", cfg.Driver).Msg("database connected")
	return db, nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Record is what NewRepository needs from a model.
type Record interface {
	GetID() uuid.UUID
	SetID(uuid.UUID)
}

// NewRepository returns a go-repository-bun repository for T. newRecord must
// return a fresh zero record; identifier names the natural-key column used
// by GetByIdentifier.
func NewRepository[T Record](db *bun.DB, newRecord func() T, identifier string) bunrepo.Repository[T] {
	return bunrepo.NewRepository[T](db, bunrepo.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return record.GetID()
		},
		SetID: func(record T, id uuid.UUID) {
			record.SetID(id)
		},
		GetIdentifier: func() string {
			return identifier
		},
	})
}

type queryLogger struct {
	logger zerolog.Logger
}

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	e := h.logger.Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		e = h.logger.Warn().Err(event.Err)
	}
	e.Str("operation", event.Operation()).
		Dur("elapsed", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("sql")
}
