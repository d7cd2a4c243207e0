package principal

import (
	"context"
	"time"

	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/types"
)

// Profile is the stored user record behind a principal.
type Profile struct {
	UID            types.ID      `json:"uid"`
	Email          string        `json:"email"`
	DisplayName    string        `json:"display_name"`
	BaseRole       role.BaseRole `json:"base_role"`
	RoleID         types.ID      `json:"role_id,omitempty"`
	Specialization string        `json:"specialization,omitempty"`
	PushToken      string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ListProfilesFilter narrows a profile listing.
type ListProfilesFilter struct {
	BaseRole *role.BaseRole
	Search   string
}

// ProfileRepository provides persistence for user profiles.
type ProfileRepository interface {
	FindByUID(ctx context.Context, uid types.ID) (*Profile, error)
	List(ctx context.Context, filter ListProfilesFilter) ([]Profile, error)
	Save(ctx context.Context, profile *Profile) error
	SavePushToken(ctx context.Context, uid types.ID, token string) error
}
