package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// MemoryProjection is an in-memory ProjectionStore used in tests.
type MemoryProjection struct {
	mu        sync.RWMutex
	incidents map[types.ID]domain.Incident
}

// NewMemoryProjection creates an empty in-memory projection store.
func NewMemoryProjection() *MemoryProjection {
	return &MemoryProjection{incidents: make(map[types.ID]domain.Incident)}
}

func (p *MemoryProjection) Get(ctx context.Context, id types.ID) (*domain.Incident, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	incident, ok := p.incidents[id]
	if !ok {
		return nil, errors.NotFound("incident", id.String())
	}
	copied := cloneIncident(incident)
	return &copied, nil
}

func (p *MemoryProjection) List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var incidents []domain.Incident
	for _, incident := range p.incidents {
		if filter.Matches(&incident) {
			incidents = append(incidents, cloneIncident(incident))
		}
	}
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
	return incidents, nil
}

func (p *MemoryProjection) Upsert(ctx context.Context, incident *domain.Incident) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.incidents[incident.ID]; ok && existing.Version > incident.Version {
		// Stale write; the projection already reflects a newer state.
		return nil
	}
	p.incidents[incident.ID] = cloneIncident(*incident)
	return nil
}

func cloneIncident(incident domain.Incident) domain.Incident {
	history := make([]domain.StatusHistoryEntry, len(incident.StatusHistory))
	copy(history, incident.StatusHistory)
	incident.StatusHistory = history
	return incident
}
