// Package infrastructure persists incidents. The history log is the
// source of truth: every history entry is one immutable event in the
// stream incident-<id>, appended with an optimistic-concurrency check.
// A queryable projection is updated in the same command path.
package infrastructure

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// AggregateType is the stream category for incident events.
const AggregateType = "incident"

// ProjectionStore is the queryable read model behind the Store.
type ProjectionStore interface {
	Get(ctx context.Context, id types.ID) (*domain.Incident, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error)
	Upsert(ctx context.Context, incident *domain.Incident) error
}

// Store implements domain.Repository over an event log and a projection.
type Store struct {
	log         eventstore.EventStore
	projections ProjectionStore
}

// NewStore creates an incident store.
func NewStore(log eventstore.EventStore, projections ProjectionStore) *Store {
	return &Store{log: log, projections: projections}
}

// FindByID reads an incident from the projection.
func (s *Store) FindByID(ctx context.Context, id types.ID) (*domain.Incident, error) {
	return s.projections.Get(ctx, id)
}

// List reads incidents from the projection.
func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error) {
	return s.projections.List(ctx, filter)
}

// Save appends the incident's pending events to the log conditioned on
// the version the caller last observed, then updates the projection. A
// wrong expected version surfaces as a ConcurrencyConflict and nothing
// is written.
func (s *Store) Save(ctx context.Context, incident *domain.Incident) error {
	pending := incident.DomainEvents()
	if len(pending) == 0 {
		return s.projections.Upsert(ctx, incident)
	}

	events := make([]*eventstore.Event, len(pending))
	for i, e := range pending {
		events[i] = toStoreEvent(incident, e)
	}

	if err := s.log.Append(ctx, events, incident.Version); err != nil {
		if stderrors.Is(err, eventstore.ErrConcurrencyConflict) {
			return errors.ConcurrencyConflict("incident", incident.ID.String())
		}
		return errors.Wrap(err, "failed to append incident events")
	}

	incident.Version = len(incident.StatusHistory)

	if err := s.projections.Upsert(ctx, incident); err != nil {
		// The log write is committed; the projection catches up on the
		// next save or a replay.
		return errors.Wrap(err, "failed to update incident projection")
	}

	return nil
}

// Rebuild reconstructs an incident purely from its event log. Used to
// verify projection parity and to repair a stale projection.
func (s *Store) Rebuild(ctx context.Context, id types.ID) (*domain.Incident, error) {
	events, err := s.log.Load(ctx, AggregateType, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load incident events")
	}
	if len(events) == 0 {
		return nil, errors.NotFound("incident", id.String())
	}

	inc := &domain.Incident{ID: id}
	for _, ev := range events {
		if err := ApplyEvent(inc, ev); err != nil {
			return nil, err
		}
	}
	inc.Version = len(events)
	return inc, nil
}

// toStoreEvent converts one pending aggregate change into a log event.
// The creation event carries the full reporter-supplied fields so the
// aggregate is reconstructable from the log alone.
func toStoreEvent(inc *domain.Incident, e domain.Event) *eventstore.Event {
	data := map[string]any{
		"entry": entryToMap(e.Entry),
	}
	for k, v := range e.Data {
		data[k] = v
	}
	if e.Type == domain.EventTypeCreated {
		data["reporter_id"] = inc.ReporterID.String()
		data["description"] = inc.Description
		data["department"] = inc.Location.Department
		data["room"] = inc.Location.Room
		data["area"] = inc.Location.Area
		data["created_at"] = inc.CreatedAt.Format(time.RFC3339Nano)
	}

	return eventstore.NewEvent(inc.ID, AggregateType, e.Type, data).
		WithActor(e.Entry.ActorID, e.Entry.ActorLabel, "user").
		WithSource("incident")
}

// ApplyEvent folds one log event into an incident. Rebuild uses it to
// replay a stream; the sync manager uses it to fold a freshly appended
// event into a projection read that has not caught up yet.
func ApplyEvent(inc *domain.Incident, ev *eventstore.Event) error {
	entry, err := EntryFromEvent(ev)
	if err != nil {
		return err
	}

	switch ev.EventType {
	case domain.EventTypeCreated:
		inc.ReporterID = types.ID(stringField(ev.Data, "reporter_id"))
		inc.Title = stringField(ev.Data, "title")
		inc.Description = stringField(ev.Data, "description")
		inc.Category = stringField(ev.Data, "category")
		inc.Priority = domain.Priority(stringField(ev.Data, "priority"))
		inc.Location = domain.Location{
			Department: stringField(ev.Data, "department"),
			Room:       stringField(ev.Data, "room"),
			Area:       stringField(ev.Data, "area"),
		}
		if t, err := time.Parse(time.RFC3339Nano, stringField(ev.Data, "created_at")); err == nil {
			inc.CreatedAt = t
		}
	case domain.EventTypeResponderAssigned:
		inc.AssignedResponderID = entry.ResponderID
	case domain.EventTypeStatusChanged:
		// Entry append below covers it.
	default:
		return fmt.Errorf("%w: unexpected event type %s", eventstore.ErrInvalidEvent, ev.EventType)
	}

	inc.StatusHistory = append(inc.StatusHistory, entry)
	inc.Status = entry.Status
	inc.UpdatedAt = entry.Timestamp
	return nil
}

// EntryFromEvent extracts the history entry embedded in a log event.
// Shared with the notification fan-out and the sync manager.
func EntryFromEvent(ev *eventstore.Event) (domain.StatusHistoryEntry, error) {
	raw, ok := ev.Data["entry"].(map[string]any)
	if !ok {
		return domain.StatusHistoryEntry{}, fmt.Errorf("%w: event %s has no entry", eventstore.ErrInvalidEvent, ev.ID)
	}

	entry := domain.StatusHistoryEntry{
		Kind:        domain.HistoryKind(stringField(raw, "kind")),
		Status:      domain.Status(stringField(raw, "status")),
		Note:        stringField(raw, "note"),
		ActorID:     types.ID(stringField(raw, "actor_id")),
		ActorLabel:  stringField(raw, "actor_label"),
		ProofRef:    stringField(raw, "proof_ref"),
		ResponderID: types.ID(stringField(raw, "responder_id")),
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(raw, "timestamp")); err == nil {
		entry.Timestamp = t
	}
	return entry, nil
}

func entryToMap(e domain.StatusHistoryEntry) map[string]any {
	m := map[string]any{
		"kind":        string(e.Kind),
		"status":      string(e.Status),
		"actor_id":    e.ActorID.String(),
		"actor_label": e.ActorLabel,
		"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.Note != "" {
		m["note"] = e.Note
	}
	if e.ProofRef != "" {
		m["proof_ref"] = e.ProofRef
	}
	if !e.ResponderID.IsZero() {
		m["responder_id"] = e.ResponderID.String()
	}
	return m
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
