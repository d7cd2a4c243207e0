// Package sync keeps live observers of the incident store eventually
// consistent. Each subscription is a filter over incidents plus a
// callback pair; deliveries are at-least-once and carry the full current
// projection matching the filter.
package sync

import (
	"context"
	"sync"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/incident/infrastructure"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/metrics"
	"github.com/safetrack/platform/internal/shared/types"
)

// Filter selects the incidents a subscriber observes.
type Filter = domain.ListFilter

// ByReporter observes the incidents a reporter filed.
func ByReporter(uid types.ID) Filter {
	return Filter{ReporterID: &uid}
}

// ByAssignee observes the incidents assigned to a responder.
func ByAssignee(uid types.ID) Filter {
	return Filter{AssignedResponder: &uid}
}

// AwaitingAssignment observes open incidents with no responder.
func AwaitingAssignment() Filter {
	return Filter{AwaitingAssignment: true}
}

// ByStatus observes incidents in one status.
func ByStatus(status domain.Status) Filter {
	return Filter{Status: &status}
}

// CancelHandle stops a subscription. The owner must call Cancel when it
// no longer needs updates; a leaked handle leaks the listener for the
// process lifetime. Cancel is idempotent, and once it returns no further
// onChange or onError calls occur for this subscription.
type CancelHandle struct {
	mu        sync.Mutex
	cancelled bool
	stop      func()
}

// Cancel stops delivery and releases the underlying feed listener.
func (h *CancelHandle) Cancel() {
	h.mu.Lock()
	already := h.cancelled
	h.cancelled = true
	stop := h.stop
	h.mu.Unlock()

	if already {
		return
	}
	if stop != nil {
		stop()
	}
	metrics.RecordSubscriptionClosed()
}

// Manager owns the subscriptions over the incident store.
type Manager struct {
	repo domain.Repository
	feed eventstore.EventSubscriber
}

// NewManager creates a subscription manager over the incident read model
// and its change feed.
func NewManager(repo domain.Repository, feed eventstore.EventSubscriber) *Manager {
	return &Manager{repo: repo, feed: feed}
}

// Subscribe registers an observer. The feed listener is attached before
// the initial snapshot is taken, so a change committed while Subscribe
// runs is delivered either by the snapshot or by its own push; the
// snapshot itself arrives synchronously before Subscribe returns. A
// broken feed or a failed delivery is reported once via onError and the
// manager does not resubscribe on its own.
func (m *Manager) Subscribe(ctx context.Context, filter Filter, onChange func([]domain.Incident), onError func(error)) (*CancelHandle, error) {
	handle := &CancelHandle{}

	deliver := func(ctx context.Context, ev *eventstore.Event) error {
		incidents, err := m.repo.List(ctx, filter)
		if err != nil {
			return err
		}
		if ev != nil {
			incidents = m.foldEvent(ctx, incidents, ev, filter)
		}
		handle.mu.Lock()
		defer handle.mu.Unlock()
		if handle.cancelled {
			return nil
		}
		onChange(incidents)
		metrics.RecordDelivery()
		return nil
	}

	// fail tears the subscription down and reports the cause. Like a
	// feed drop, it fires onError at most once per subscription and
	// never retries.
	fail := func(cause error) {
		handle.mu.Lock()
		cancelled := handle.cancelled
		handle.cancelled = true
		stop := handle.stop
		handle.mu.Unlock()
		if cancelled {
			return
		}
		if stop != nil {
			stop()
		}
		metrics.RecordSubscriptionClosed()
		if onError != nil {
			onError(errors.SyncFailure(cause))
		}
	}

	handler := func(ctx context.Context, ev *eventstore.Event) error {
		if err := deliver(ctx, ev); err != nil {
			fail(err)
		}
		return nil
	}
	onDrop := func(cause error) {
		handle.mu.Lock()
		cancelled := handle.cancelled
		handle.cancelled = true
		handle.mu.Unlock()
		if cancelled {
			return
		}
		metrics.RecordSubscriptionClosed()
		if onError != nil {
			onError(errors.SyncFailure(cause))
		}
	}

	// Attach before the snapshot so nothing committed in between falls
	// through the gap. An event the snapshot already covers is simply
	// redelivered, which at-least-once allows.
	stop, err := m.feed.Subscribe(ctx, infrastructure.AggregateType, handler, onDrop)
	if err != nil {
		return nil, errors.SyncFailure(err)
	}
	handle.mu.Lock()
	handle.stop = stop
	handle.mu.Unlock()
	metrics.RecordSubscriptionOpened()

	if err := deliver(ctx, nil); err != nil {
		handle.Cancel()
		return nil, errors.SyncFailure(err)
	}
	return handle, nil
}

// foldEvent folds the triggering event into a projection read, so every
// push reflects at least the change that caused it. The projection is
// updated in the same command path as the append, but the feed can
// outrun it.
func (m *Manager) foldEvent(ctx context.Context, incidents []domain.Incident, ev *eventstore.Event, filter Filter) []domain.Incident {
	for i := range incidents {
		if incidents[i].ID != ev.AggregateID {
			continue
		}
		if incidents[i].Version >= ev.Version {
			return incidents
		}
		inc := incidents[i]
		if err := infrastructure.ApplyEvent(&inc, ev); err != nil {
			return incidents
		}
		inc.Version = ev.Version
		if filter.Matches(&inc) {
			incidents[i] = inc
			return incidents
		}
		return append(incidents[:i], incidents[i+1:]...)
	}

	// Not in the listing: the event may move the incident into the
	// filter. Creation events carry the full state; anything else needs
	// the stored incident as the base.
	inc := &domain.Incident{ID: ev.AggregateID}
	if ev.EventType != domain.EventTypeCreated {
		stored, err := m.repo.FindByID(ctx, ev.AggregateID)
		if err != nil {
			return incidents
		}
		inc = stored
	}
	if inc.Version >= ev.Version {
		return incidents
	}
	if err := infrastructure.ApplyEvent(inc, ev); err != nil {
		return incidents
	}
	inc.Version = ev.Version
	if filter.Matches(inc) {
		return append(incidents, *inc)
	}
	return incidents
}
