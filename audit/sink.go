package audit

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Sink persists audit records.
type Sink interface {
	Store(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *Record) error

// Store calls f.
func (f SinkFunc) Store(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// BunSink writes records to the security_audit_logs table.
type BunSink struct {
	db bun.IDB
}

// NewBunSink returns a sink backed by db.
func NewBunSink(db bun.IDB) *BunSink {
	return &BunSink{db: db}
}

// Store inserts rec.
func (s *BunSink) Store(ctx context.Context, rec *Record) error {
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("audit: insert %s: %w", rec.Action, err)
	}
	return nil
}

// CreateTable creates security_audit_logs when missing.
func (s *BunSink) CreateTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("audit: create table: %w", err)
	}
	return nil
}

// LogSink writes records as structured log lines. Used when no database is
// configured, e.g. by the CLI in dry-run mode.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Store logs rec at info level.
func (s *LogSink) Store(ctx context.Context, rec *Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}

	s.logger.Info().
		Str("audit_id", rec.ID.String()).
		Str("action", rec.Action).
		Str("user_id", rec.UserID).
		Str("resource_type", rec.ResourceType).
		Str("resource_id", rec.ResourceID).
		Str("severity", string(rec.Severity)).
		Bool("success", rec.Success).
		RawJSON("details", details).
		Msg("audit")
	return nil
}
