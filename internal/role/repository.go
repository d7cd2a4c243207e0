package role

import (
	"context"
	"errors"

	"github.com/safetrack/platform/internal/shared/types"
)

var (
	errEmptyLabel        = errors.New("role label is required")
	errUnknownBaseRole   = errors.New("unknown base role")
	errUnknownPermission = errors.New("unknown permission")

	// ErrSystemRole is returned when a write targets a system role.
	ErrSystemRole = errors.New("system roles cannot be modified")
)

// ListFilter narrows a role listing.
type ListFilter struct {
	BaseRole *BaseRole
}

// Repository provides persistence for custom role definitions.
type Repository interface {
	FindByID(ctx context.Context, id types.ID) (*Role, error)
	List(ctx context.Context, filter ListFilter) ([]Role, error)
	Save(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id types.ID) error
}
