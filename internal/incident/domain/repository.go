package domain

import (
	"context"

	"github.com/safetrack/platform/internal/shared/types"
)

// ListFilter narrows an incident listing. At most one of the ownership
// filters is set; Status may combine with any of them.
type ListFilter struct {
	ReporterID         *types.ID
	AssignedResponder  *types.ID
	AwaitingAssignment bool
	Status             *Status
}

// Matches evaluates the filter against an incident. Used by the sync
// manager and the in-memory repository; the Postgres repository compiles
// the same predicate to SQL.
func (f ListFilter) Matches(i *Incident) bool {
	if f.ReporterID != nil && i.ReporterID != *f.ReporterID {
		return false
	}
	if f.AssignedResponder != nil && i.AssignedResponderID != *f.AssignedResponder {
		return false
	}
	if f.AwaitingAssignment && (!i.AssignedResponderID.IsZero() || i.Status != StatusOpen) {
		return false
	}
	if f.Status != nil && i.Status != *f.Status {
		return false
	}
	return true
}

// Repository is the read-model store for incidents. Writes go through
// Save, which persists the pending events to the history log with an
// optimistic-concurrency check before updating the projection.
type Repository interface {
	FindByID(ctx context.Context, id types.ID) (*Incident, error)
	List(ctx context.Context, filter ListFilter) ([]Incident, error)
	Save(ctx context.Context, incident *Incident) error
}
