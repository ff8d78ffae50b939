package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SystemUser is recorded when no actor is known.
const SystemUser = "system"

// Severity ranks how much attention a record deserves.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Record is one row of the security audit log.
type Record struct {
	bun.BaseModel `bun:"table:security_audit_logs,alias:sal"`

	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Action        string         `bun:"action,notnull" json:"action"`
	UserID        string         `bun:"user_id,notnull" json:"user_id"`
	ResourceType  string         `bun:"resource_type,notnull" json:"resource_type"`
	ResourceID    string         `bun:"resource_id,nullzero" json:"resource_id,omitempty"`
	Severity      Severity       `bun:"severity,notnull" json:"severity"`
	Success       bool           `bun:"success,notnull" json:"success"`
	Details       map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	IPAddress     string         `bun:"ip_address,nullzero" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent,nullzero" json:"user_agent,omitempty"`
	CorrelationID string         `bun:"correlation_id,nullzero" json:"correlation_id,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
}

// Action builds the "<TABLE>_<OPERATION>" action name.
func Action(table, operation string) string {
	return strings.ToUpper(table) + "_" + strings.ToUpper(operation)
}

// Actor identifies who performed an operation.
type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Or fills the empty fields of a from fallback.
func (a Actor) Or(fallback Actor) Actor {
	if a.UserID == "" {
		a.UserID = fallback.UserID
	}
	if a.IPAddress == "" {
		a.IPAddress = fallback.IPAddress
	}
	if a.UserAgent == "" {
		a.UserAgent = fallback.UserAgent
	}
	return a
}

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
