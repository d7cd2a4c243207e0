// Package principal resolves an authenticated identity into an
// acting principal: profile, base role and effective permission set.
// Every role-gated operation downstream consumes the Principal produced
// here; resolution failures always land on the least-privileged outcome.
package principal

import (
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/types"
)

// Principal is a fully resolved acting user.
type Principal struct {
	UID            types.ID           `json:"uid"`
	Email          string             `json:"email"`
	DisplayName    string             `json:"display_name"`
	BaseRole       role.BaseRole      `json:"base_role"`
	RoleID         types.ID           `json:"role_id,omitempty"`
	Specialization string             `json:"specialization,omitempty"`
	Permissions    role.PermissionSet `json:"permissions"`
}

// HasPermission checks the principal's effective permission set.
func (p *Principal) HasPermission(perm role.Permission) bool {
	if p == nil {
		return false
	}
	return p.Permissions.Has(perm)
}

// Label returns the display name used in history entries, falling back
// to the email address.
func (p *Principal) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// State is the outcome of principal resolution.
type State string

const (
	// StateUnauthenticated means no valid identity was presented.
	StateUnauthenticated State = "unauthenticated"
	// StateProfileIncomplete means the identity is valid but has no
	// profile record yet; the only reachable surface is profile setup.
	StateProfileIncomplete State = "profile_incomplete"
	// StateResolved means a full principal is available.
	StateResolved State = "resolved"
)

// Resolution is the result of resolving an identity. Exactly one of the
// three states applies; Principal is non-nil only when resolved.
type Resolution struct {
	State     State      `json:"state"`
	Principal *Principal `json:"principal,omitempty"`
	// UID and Email carry the identity through a profile_incomplete
	// resolution so profile setup can complete it.
	UID   types.ID `json:"uid,omitempty"`
	Email string   `json:"email,omitempty"`
}
