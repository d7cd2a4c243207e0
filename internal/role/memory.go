package role

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// MemoryRepository is an in-memory Repository used in tests and local
// development.
type MemoryRepository struct {
	mu    sync.RWMutex
	roles map[types.ID]Role
}

// NewMemoryRepository creates an empty in-memory role repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{roles: make(map[types.ID]Role)}
}

func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, errors.NotFound("role", id.String())
	}
	copied := role
	return &copied, nil
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roles []Role
	for _, role := range r.roles {
		if filter.BaseRole != nil && role.BaseRole != *filter.BaseRole {
			continue
		}
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Label < roles[j].Label })
	return roles, nil
}

func (r *MemoryRepository) Save(ctx context.Context, role *Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.roles[role.ID]; ok && existing.IsSystem {
		return ErrSystemRole
	}

	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	r.roles[role.ID] = *role
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[id]
	if !ok || role.IsSystem {
		return errors.NotFound("role", id.String())
	}
	delete(r.roles, id)
	return nil
}
