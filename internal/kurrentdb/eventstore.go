package kurrentdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/shared/types"
)

// EventStore implements the eventstore.EventStore interface using KurrentDB.
// Each aggregate gets its own stream named {aggregateType}-{aggregateID};
// the stream revision doubles as the optimistic-concurrency token.
type EventStore struct {
	client *Client
}

// NewEventStore creates a new KurrentDB-backed event store.
func NewEventStore(client *Client) *EventStore {
	return &EventStore{client: client}
}

// streamName returns the stream name for an aggregate.
func streamName(aggregateType string, aggregateID types.ID) string {
	return fmt.Sprintf("%s-%s", aggregateType, aggregateID)
}

// Append stores new events for an aggregate with optimistic concurrency.
func (s *EventStore) Append(ctx context.Context, events []*eventstore.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	// All events must be for the same aggregate
	aggregateID := events[0].AggregateID
	aggregateType := events[0].AggregateType
	stream := streamName(aggregateType, aggregateID)

	esdbEvents := make([]esdb.EventData, len(events))
	for i, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		esdbEvents[i] = esdb.EventData{
			EventType:   event.EventType,
			ContentType: esdb.ContentTypeJson,
			Data:        data,
			Metadata:    metadata,
			EventID:     toUUID(event.ID),
		}
	}

	// Set expected revision for optimistic concurrency
	var options esdb.AppendToStreamOptions
	if expectedVersion == 0 {
		options.ExpectedRevision = esdb.NoStream{}
	} else {
		options.ExpectedRevision = esdb.Revision(uint64(expectedVersion - 1))
	}

	_, err := s.client.DB().AppendToStream(ctx, stream, options, esdbEvents...)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeWrongExpectedVersion {
				return eventstore.ErrConcurrencyConflict
			}
		}
		return fmt.Errorf("failed to append events: %w", err)
	}

	return nil
}

// Load retrieves all events for an aggregate in version order.
func (s *EventStore) Load(ctx context.Context, aggregateType string, aggregateID types.ID) ([]*eventstore.Event, error) {
	stream := streamName(aggregateType, aggregateID)

	readStream, err := s.client.DB().ReadStream(ctx, stream, esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 4096)

	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	defer readStream.Close()

	var events []*eventstore.Event
	for {
		resolved, err := readStream.Recv()
		if err != nil {
			break // End of stream
		}

		event, err := resolvedEventToEvent(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to convert event: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

// Version returns the current version of an aggregate (0 when absent).
func (s *EventStore) Version(ctx context.Context, aggregateType string, aggregateID types.ID) (int, error) {
	stream := streamName(aggregateType, aggregateID)

	readStream, err := s.client.DB().ReadStream(ctx, stream, esdb.ReadStreamOptions{
		From:      esdb.End{},
		Direction: esdb.Backwards,
	}, 1)

	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return 0, nil
			}
		}
		return 0, fmt.Errorf("failed to read stream: %w", err)
	}
	defer readStream.Close()

	resolved, err := readStream.Recv()
	if err != nil {
		return 0, nil
	}
	if resolved.Event == nil {
		return 0, nil
	}

	return int(resolved.Event.EventNumber) + 1, nil
}

// resolvedEventToEvent converts a KurrentDB resolved event to our event type.
func resolvedEventToEvent(resolved *esdb.ResolvedEvent) (*eventstore.Event, error) {
	event := resolved.Event
	if event == nil {
		return nil, fmt.Errorf("event is nil")
	}

	var data map[string]any
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	var metadata eventstore.EventMetadata
	if len(event.UserMetadata) > 0 {
		if err := json.Unmarshal(event.UserMetadata, &metadata); err != nil {
			// Metadata parsing is optional
			metadata = eventstore.EventMetadata{}
		}
	}

	// Stream format: {aggregateType}-{aggregateID}
	aggregateType, aggregateID := parseStreamName(event.StreamID)

	return &eventstore.Event{
		ID:            parseEventID(event.EventID),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.EventType,
		Version:       int(event.EventNumber) + 1,
		Timestamp:     event.CreatedDate,
		Data:          data,
		Metadata:      metadata,
	}, nil
}

// parseStreamName extracts aggregate type and ID from stream name.
func parseStreamName(stream string) (string, types.ID) {
	// The aggregate ID is the trailing UUID (36 chars with hyphens)
	if len(stream) > 37 && stream[len(stream)-37] == '-' {
		return stream[:len(stream)-37], types.ID(stream[len(stream)-36:])
	}
	return stream, ""
}
