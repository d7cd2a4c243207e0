// Package role provides the role and permission catalog. Every
// authorization decision in the workflow resolves through a permission
// set; callers never branch on role names directly.
package role

import (
	"time"

	"github.com/safetrack/platform/internal/shared/types"
)

// BaseRole is one of the four built-in role families. Custom roles always
// belong to exactly one family and fall back to its defaults.
type BaseRole string

const (
	BaseReporter  BaseRole = "reporter"
	BaseResponder BaseRole = "responder"
	BaseReviewer  BaseRole = "reviewer"
	BaseAdmin     BaseRole = "admin"
)

// ParseBaseRole returns the base role for s, or false when unknown.
func ParseBaseRole(s string) (BaseRole, bool) {
	switch BaseRole(s) {
	case BaseReporter, BaseResponder, BaseReviewer, BaseAdmin:
		return BaseRole(s), true
	}
	return "", false
}

// Valid reports whether the base role is one of the known families.
func (b BaseRole) Valid() bool {
	_, ok := ParseBaseRole(string(b))
	return ok
}

// Permission represents a specific action on a resource.
type Permission string

const (
	PermViewIncidents    Permission = "view_incidents"
	PermCreateIncidents  Permission = "create_incidents"
	PermEditIncidents    Permission = "edit_incidents"
	PermDeleteIncidents  Permission = "delete_incidents"
	PermAssignResponders Permission = "assign_responders"
	PermManageUsers      Permission = "manage_users"
	PermManageRoles      Permission = "manage_roles"
	PermViewAnalytics    Permission = "view_analytics"
	PermExportData       Permission = "export_data"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermViewIncidents, PermCreateIncidents, PermEditIncidents,
	PermDeleteIncidents, PermAssignResponders,
	PermManageUsers, PermManageRoles,
	PermViewAnalytics, PermExportData,
}

// PermissionSet is an ordered collection of granted permissions.
type PermissionSet []Permission

// Has checks if the set grants a specific permission.
func (s PermissionSet) Has(perm Permission) bool {
	for _, p := range s {
		if p == perm {
			return true
		}
	}
	return false
}

// DefaultPermissions maps base roles to their built-in permission sets.
// An unknown base role resolves to no permissions at all.
var DefaultPermissions = map[BaseRole]PermissionSet{
	BaseReporter: {
		PermViewIncidents, PermCreateIncidents,
	},
	BaseResponder: {
		PermViewIncidents, PermCreateIncidents, PermEditIncidents,
	},
	BaseReviewer: {
		PermViewIncidents, PermCreateIncidents, PermEditIncidents,
		PermDeleteIncidents, PermAssignResponders,
		PermViewAnalytics, PermExportData,
	},
	BaseAdmin: {
		PermViewIncidents, PermCreateIncidents, PermEditIncidents,
		PermDeleteIncidents, PermAssignResponders,
		PermManageUsers, PermManageRoles,
		PermViewAnalytics, PermExportData,
	},
}

// Defaults returns the built-in permission set for a base role. Unknown
// base roles yield the empty set: authorization fails closed.
func Defaults(base BaseRole) PermissionSet {
	return DefaultPermissions[base]
}

// Role is a named permission bundle within a base role family. System
// roles mirror the built-in defaults and cannot be edited or deleted.
type Role struct {
	ID          types.ID      `json:"id"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	BaseRole    BaseRole      `json:"base_role"`
	Permissions PermissionSet `json:"permissions"`
	Color       string        `json:"color,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	IsSystem    bool          `json:"is_system"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Validate checks the role definition before it is saved.
func (r *Role) Validate() error {
	if r.Label == "" {
		return errEmptyLabel
	}
	if !r.BaseRole.Valid() {
		return errUnknownBaseRole
	}
	for _, p := range r.Permissions {
		if !knownPermission(p) {
			return errUnknownPermission
		}
	}
	return nil
}

func knownPermission(p Permission) bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}
