package eventstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/safetrack/platform/internal/shared/types"
)

// MemoryStore is an in-process EventStore and EventSubscriber. It backs
// tests and the degraded mode where KurrentDB is unavailable. Append,
// version bookkeeping, and fan-out all happen under one lock, so the
// conditional-append semantics match the real store.
type MemoryStore struct {
	mu      sync.Mutex
	streams map[string][]*Event
	subs    map[int]*memorySub
	nextSub int
}

type memorySub struct {
	aggregateType string
	handler       EventHandler
	onDrop        func(error)
	cancelled     bool
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]*Event),
		subs:    make(map[int]*memorySub),
	}
}

func streamKey(aggregateType string, aggregateID types.ID) string {
	return fmt.Sprintf("%s-%s", aggregateType, aggregateID)
}

// Append stores events under the optimistic concurrency check.
func (s *MemoryStore) Append(ctx context.Context, events []*Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()

	key := streamKey(events[0].AggregateType, events[0].AggregateID)
	stream := s.streams[key]
	if len(stream) != expectedVersion {
		s.mu.Unlock()
		return ErrConcurrencyConflict
	}

	for i, event := range events {
		event.Version = expectedVersion + i + 1
		stream = append(stream, event)
	}
	s.streams[key] = stream

	// Snapshot live subscribers so handlers run outside the lock.
	var deliveries []*memorySub
	for _, sub := range s.subs {
		if !sub.cancelled && sub.aggregateType == events[0].AggregateType {
			deliveries = append(deliveries, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range deliveries {
		for _, event := range events {
			// Delivery errors are the handler's problem; the log entry
			// is already committed.
			_ = sub.handler(ctx, event)
		}
	}

	return nil
}

// Load retrieves all events for an aggregate in version order.
func (s *MemoryStore) Load(ctx context.Context, aggregateType string, aggregateID types.ID) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamKey(aggregateType, aggregateID)]
	out := make([]*Event, len(stream))
	copy(out, stream)
	return out, nil
}

// Version returns the current version of an aggregate.
func (s *MemoryStore) Version(ctx context.Context, aggregateType string, aggregateID types.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.streams[streamKey(aggregateType, aggregateID)]), nil
}

// Subscribe registers a live handler for an aggregate type.
func (s *MemoryStore) Subscribe(ctx context.Context, aggregateType string, handler EventHandler, onDrop func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &memorySub{aggregateType: aggregateType, handler: handler, onDrop: onDrop}
	s.subs[id] = sub

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.cancelled = true
		delete(s.subs, id)
	}
	return cancel, nil
}

// DropAll simulates a broken feed: every live subscription is removed and
// its onDrop callback invoked once. Tests use it to exercise sync-error
// paths; the owner decides whether to resubscribe.
func (s *MemoryStore) DropAll(err error) {
	s.mu.Lock()
	var dropped []*memorySub
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.cancelled = true
		dropped = append(dropped, sub)
	}
	s.mu.Unlock()

	for _, sub := range dropped {
		if sub.onDrop != nil {
			sub.onDrop(err)
		}
	}
}
