package role

import (
	"context"
	"log"

	"github.com/safetrack/platform/internal/shared/types"
)

// Catalog resolves permission sets for principals. Resolution never
// returns an error into an authorization check: a missing or broken
// custom role falls back to the base role defaults, an unknown base role
// falls back to no permissions at all.
type Catalog struct {
	repo Repository
}

// NewCatalog creates a catalog over a role repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// ResolvePermissions returns the effective permission set for a principal
// with the given custom role ID (may be zero) and base role.
func (c *Catalog) ResolvePermissions(ctx context.Context, roleID types.ID, base BaseRole) PermissionSet {
	if !roleID.IsZero() && c.repo != nil {
		role, err := c.repo.FindByID(ctx, roleID)
		if err == nil && role.BaseRole == base {
			return role.Permissions
		}
		if err != nil {
			log.Printf("role %s not resolvable, falling back to %s defaults: %v", roleID, base, err)
		}
	}
	return Defaults(base)
}

// ListCustomRoles lists saved role definitions, optionally filtered by
// base role family.
func (c *Catalog) ListCustomRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	return c.repo.List(ctx, filter)
}

// SaveRole validates and persists a role definition.
func (c *Catalog) SaveRole(ctx context.Context, role *Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	if role.ID.IsZero() {
		role.ID = types.NewID()
	}
	return c.repo.Save(ctx, role)
}

// DeleteRole removes a custom role definition.
func (c *Catalog) DeleteRole(ctx context.Context, id types.ID) error {
	return c.repo.Delete(ctx, id)
}
