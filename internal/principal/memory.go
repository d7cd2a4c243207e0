package principal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// MemoryProfileRepository is an in-memory ProfileRepository used in tests.
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[types.ID]Profile
}

// NewMemoryProfileRepository creates an empty in-memory profile repository.
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[types.ID]Profile)}
}

func (r *MemoryProfileRepository) FindByUID(ctx context.Context, uid types.ID) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[uid]
	if !ok {
		return nil, errors.NotFound("profile", uid.String())
	}
	copied := profile
	return &copied, nil
}

func (r *MemoryProfileRepository) List(ctx context.Context, filter ListProfilesFilter) ([]Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var profiles []Profile
	for _, profile := range r.profiles {
		if filter.BaseRole != nil && profile.BaseRole != *filter.BaseRole {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(profile.DisplayName), needle) &&
				!strings.Contains(strings.ToLower(profile.Email), needle) {
				continue
			}
		}
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Email < profiles[j].Email })
	return profiles, nil
}

func (r *MemoryProfileRepository) Save(ctx context.Context, profile *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.profiles[profile.UID]; ok {
		profile.CreatedAt = existing.CreatedAt
		if profile.PushToken == "" {
			profile.PushToken = existing.PushToken
		}
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	r.profiles[profile.UID] = *profile
	return nil
}

func (r *MemoryProfileRepository) SavePushToken(ctx context.Context, uid types.ID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[uid]
	if !ok {
		return errors.NotFound("profile", uid.String())
	}
	profile.PushToken = token
	profile.UpdatedAt = time.Now().UTC()
	r.profiles[uid] = profile
	return nil
}
