package syncqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Action is the mutation an item replays.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ResourceType is the entity an item targets.
type ResourceType string

const (
	TypeResident  ResourceType = "resident"
	TypeHousehold ResourceType = "household"
	TypeUser      ResourceType = "user"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("syncqueue: item not found")
	// ErrNoRoute is returned when no endpoint serves an action and type.
	ErrNoRoute = errors.New("syncqueue: no route for item")
	// ErrClosed is returned after the store is closed.
	ErrClosed = errors.New("syncqueue: store closed")
	// ErrInvalidItem is returned when an item fails validation.
	ErrInvalidItem = errors.New("syncqueue: invalid item")
)

// Item is one pending mutation. Seq orders items FIFO.
type Item struct {
	ID          string          `json:"id"`
	Seq         uint64          `json:"seq"`
	Action      Action          `json:"action"`
	Type        ResourceType    `json:"type"`
	ResourceKey string          `json:"resource_key,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks action and type. Resident and household updates and
// deletes need a ResourceKey for the URL.
func (i Item) Validate() error {
	switch i.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidItem, i.Action)
	}
	switch i.Type {
	case TypeResident, TypeHousehold, TypeUser:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidItem, i.Type)
	}
	if i.Action != ActionCreate && i.Type != TypeUser && i.ResourceKey == "" {
		return fmt.Errorf("%w: %s %s needs a resource key", ErrInvalidItem, i.Action, i.Type)
	}
	return nil
}

// Stuck reports whether the item has used up its retries.
func (i Item) Stuck(maxRetries int) bool {
	return i.RetryCount >= maxRetries
}
