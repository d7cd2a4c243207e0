package kurrentdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	"github.com/safetrack/platform/internal/eventstore"
)

// Subscriber implements the eventstore.EventSubscriber interface using
// KurrentDB category projections. Delivery is at-least-once; when a
// subscription drops the onDrop callback fires once and no reconnect is
// attempted.
type Subscriber struct {
	client *Client
}

// NewSubscriber creates a new KurrentDB-backed event subscriber.
func NewSubscriber(client *Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe registers a handler for all events of an aggregate type,
// starting from the live tail of the $ce-{aggregateType} category stream.
func (s *Subscriber) Subscribe(ctx context.Context, aggregateType string, handler eventstore.EventHandler, onDrop func(error)) (func(), error) {
	stream := fmt.Sprintf("$ce-%s", aggregateType)

	sub, err := s.client.DB().SubscribeToStream(ctx, stream, esdb.SubscribeToStreamOptions{
		From:           esdb.End{},
		ResolveLinkTos: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to stream %s: %w", stream, err)
	}

	subCtx, cancelCtx := context.WithCancel(ctx)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			sub.Close()
		})
	}

	go s.pump(subCtx, sub, handler, onDrop)

	return cancel, nil
}

// pump delivers events from the subscription until it is cancelled or
// dropped by the server.
func (s *Subscriber) pump(ctx context.Context, sub *esdb.Subscription, handler eventstore.EventHandler, onDrop func(error)) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			subEvent := sub.Recv()
			if subEvent.EventAppeared == nil {
				if subEvent.SubscriptionDropped != nil {
					if ctx.Err() != nil {
						return // deliberate cancel, not a failure
					}
					log.Printf("Subscription dropped: %v", subEvent.SubscriptionDropped.Error)
					if onDrop != nil {
						onDrop(subEvent.SubscriptionDropped.Error)
					}
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}

			resolved := subEvent.EventAppeared
			if resolved.Event == nil {
				continue
			}

			// Skip system events
			if len(resolved.Event.EventType) > 0 && resolved.Event.EventType[0] == '$' {
				continue
			}

			event, err := resolvedEventToEvent(resolved)
			if err != nil {
				log.Printf("Failed to convert event: %v", err)
				continue
			}

			if err := handler(ctx, event); err != nil {
				log.Printf("Handler error for event %s: %v", event.ID, err)
			}
		}
	}
}
