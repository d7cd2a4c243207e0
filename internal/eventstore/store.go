// Package eventstore provides the append-only log infrastructure behind
// incident status history. Each history entry is one immutable event keyed
// by (incident id, sequence number); appends are conditional on the
// expected version, so concurrent writers can never silently overwrite one
// another. Implementation is provided by the kurrentdb package.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/safetrack/platform/internal/shared/types"
)

// Common errors
var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrInvalidEvent        = errors.New("invalid event data")
)

// Event represents a domain event stored in the event store.
type Event struct {
	ID            types.ID       `json:"id"`
	AggregateID   types.ID       `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	EventType     string         `json:"event_type"`
	Version       int            `json:"version"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
	Metadata      EventMetadata  `json:"metadata"`
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	CorrelationID string   `json:"correlation_id,omitempty"`
	ActorID       types.ID `json:"actor_id"`
	ActorLabel    string   `json:"actor_label,omitempty"`
	ActorType     string   `json:"actor_type"` // reporter, responder, reviewer, admin, system
	Source        string   `json:"source"`
}

// NewEvent creates a new event with generated ID and timestamp.
func NewEvent(aggregateID types.ID, aggregateType, eventType string, data map[string]any) *Event {
	return &Event{
		ID:            types.NewID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Data:          data,
		Metadata:      EventMetadata{},
	}
}

// WithActor sets the actor information.
func (e *Event) WithActor(actorID types.ID, actorLabel, actorType string) *Event {
	e.Metadata.ActorID = actorID
	e.Metadata.ActorLabel = actorLabel
	e.Metadata.ActorType = actorType
	return e
}

// WithSource sets the emitting component.
func (e *Event) WithSource(source string) *Event {
	e.Metadata.Source = source
	return e
}

// EventHandler is a function that handles events.
type EventHandler func(ctx context.Context, event *Event) error

// EventStore defines the interface for event storage operations.
type EventStore interface {
	// Append stores new events for an aggregate with optimistic concurrency.
	// expectedVersion is the version the writer last observed (0 for a new
	// aggregate); a mismatch returns ErrConcurrencyConflict.
	Append(ctx context.Context, events []*Event, expectedVersion int) error

	// Load retrieves all events for an aggregate in version order.
	Load(ctx context.Context, aggregateType string, aggregateID types.ID) ([]*Event, error)

	// Version returns the current version of an aggregate (0 when absent).
	Version(ctx context.Context, aggregateType string, aggregateID types.ID) (int, error)
}

// EventSubscriber delivers committed events to live observers. The feed is
// at-least-once; handlers must tolerate redelivery.
type EventSubscriber interface {
	// Subscribe registers a handler for events of an aggregate type,
	// starting from the live tail. The returned cancel function stops
	// delivery and releases the listener; it is safe to call more than
	// once. onDrop, when non-nil, is invoked once if the feed breaks;
	// the subscriber does not reconnect on its own.
	Subscribe(ctx context.Context, aggregateType string, handler EventHandler, onDrop func(error)) (cancel func(), err error)
}
