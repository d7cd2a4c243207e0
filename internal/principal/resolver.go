package principal

import (
	"context"
	stderrors "errors"
	"log"

	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/auth"
	"github.com/safetrack/platform/internal/shared/errors"
)

// Resolver turns an authenticated identity into a Resolution. Resolution
// is idempotent: resolving the same identity twice yields the same
// outcome, and a later resolution for a different identity fully replaces
// the earlier one (nothing is cached across calls).
type Resolver struct {
	profiles ProfileRepository
	catalog  *role.Catalog
}

// NewResolver creates a resolver over the profile store and role catalog.
func NewResolver(profiles ProfileRepository, catalog *role.Catalog) *Resolver {
	return &Resolver{profiles: profiles, catalog: catalog}
}

// Resolve produces the resolution for an identity. A nil identity is
// unauthenticated; a missing profile is profile_incomplete; anything the
// resolver cannot verify fails closed to unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) Resolution {
	if identity == nil || identity.UID.IsZero() {
		return Resolution{State: StateUnauthenticated}
	}

	profile, err := r.profiles.FindByUID(ctx, identity.UID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return Resolution{
				State: StateProfileIncomplete,
				UID:   identity.UID,
				Email: identity.Email,
			}
		}
		log.Printf("principal resolution failed for %s: %v", identity.UID, err)
		return Resolution{State: StateUnauthenticated}
	}

	perms := r.catalog.ResolvePermissions(ctx, profile.RoleID, profile.BaseRole)

	return Resolution{
		State: StateResolved,
		UID:   profile.UID,
		Email: profile.Email,
		Principal: &Principal{
			UID:            profile.UID,
			Email:          profile.Email,
			DisplayName:    profile.DisplayName,
			BaseRole:       profile.BaseRole,
			RoleID:         profile.RoleID,
			Specialization: profile.Specialization,
			Permissions:    perms,
		},
	}
}
