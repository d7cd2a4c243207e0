package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// MemoryRepository is an in-memory notification store for tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[types.ID]Notification
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[types.ID]Notification)}
}

func (r *MemoryRepository) ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > FeedLimit {
		limit = FeedLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Save(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.items[n.ID] = *n
	return nil
}

func (r *MemoryRepository) MarkRead(ctx context.Context, id, userID types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return errors.NotFound("notification", id.String())
	}
	n.Read = true
	r.items[id] = n
	return nil
}
