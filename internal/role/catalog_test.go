package role

import (
	"context"
	"testing"

	"github.com/safetrack/platform/internal/shared/types"
)

func TestDefaultPermissions(t *testing.T) {
	tests := []struct {
		name    string
		base    BaseRole
		want    []Permission
		notWant []Permission
	}{
		{
			name:    "reporter can view and create only",
			base:    BaseReporter,
			want:    []Permission{PermViewIncidents, PermCreateIncidents},
			notWant: []Permission{PermEditIncidents, PermAssignResponders, PermManageRoles},
		},
		{
			name:    "responder can edit but not assign",
			base:    BaseResponder,
			want:    []Permission{PermViewIncidents, PermCreateIncidents, PermEditIncidents},
			notWant: []Permission{PermAssignResponders, PermDeleteIncidents, PermManageUsers},
		},
		{
			name:    "reviewer can assign and export but not manage",
			base:    BaseReviewer,
			want:    []Permission{PermEditIncidents, PermDeleteIncidents, PermAssignResponders, PermViewAnalytics, PermExportData},
			notWant: []Permission{PermManageUsers, PermManageRoles},
		},
		{
			name: "admin has everything",
			base: BaseAdmin,
			want: AllPermissions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := Defaults(tt.base)
			for _, p := range tt.want {
				if !set.Has(p) {
					t.Errorf("expected %s to have %s", tt.base, p)
				}
			}
			for _, p := range tt.notWant {
				if set.Has(p) {
					t.Errorf("expected %s to not have %s", tt.base, p)
				}
			}
		})
	}
}

func TestDefaultsUnknownBaseRole(t *testing.T) {
	set := Defaults(BaseRole("superuser"))
	if len(set) != 0 {
		t.Errorf("unknown base role should resolve to no permissions, got %v", set)
	}
	for _, p := range AllPermissions {
		if set.Has(p) {
			t.Errorf("unknown base role should not have %s", p)
		}
	}
}

func TestCatalogResolvePermissions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	catalog := NewCatalog(repo)

	custom := &Role{
		Label:       "Night Responder",
		BaseRole:    BaseResponder,
		Permissions: PermissionSet{PermViewIncidents, PermEditIncidents, PermAssignResponders},
	}
	if err := catalog.SaveRole(ctx, custom); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}

	t.Run("custom role overrides base defaults", func(t *testing.T) {
		set := catalog.ResolvePermissions(ctx, custom.ID, BaseResponder)
		if !set.Has(PermAssignResponders) {
			t.Error("custom role grant not honored")
		}
		if set.Has(PermCreateIncidents) {
			t.Error("custom role should not inherit base defaults")
		}
	})

	t.Run("unknown role id falls back to base defaults", func(t *testing.T) {
		set := catalog.ResolvePermissions(ctx, types.NewID(), BaseResponder)
		if !set.Has(PermEditIncidents) {
			t.Error("expected responder defaults")
		}
		if set.Has(PermAssignResponders) {
			t.Error("fallback must not grant beyond defaults")
		}
	})

	t.Run("zero role id resolves base defaults", func(t *testing.T) {
		set := catalog.ResolvePermissions(ctx, types.ID(""), BaseReporter)
		if !set.Has(PermCreateIncidents) || set.Has(PermEditIncidents) {
			t.Errorf("expected reporter defaults, got %v", set)
		}
	})

	t.Run("role from another family is not honored", func(t *testing.T) {
		set := catalog.ResolvePermissions(ctx, custom.ID, BaseReporter)
		if set.Has(PermAssignResponders) {
			t.Error("cross-family role must fall back to base defaults")
		}
	})
}

func TestSaveRoleValidation(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(NewMemoryRepository())

	tests := []struct {
		name string
		role Role
	}{
		{"empty label", Role{BaseRole: BaseResponder}},
		{"unknown base role", Role{Label: "X", BaseRole: "wizard"}},
		{"unknown permission", Role{Label: "X", BaseRole: BaseAdmin, Permissions: PermissionSet{"launch_missiles"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := tt.role
			if err := catalog.SaveRole(ctx, &role); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSystemRoleImmutable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	catalog := NewCatalog(repo)

	system := Role{
		ID:          types.NewID(),
		Label:       "Responder",
		BaseRole:    BaseResponder,
		Permissions: Defaults(BaseResponder),
		IsSystem:    true,
	}
	if err := repo.Save(ctx, &system); err != nil {
		t.Fatalf("seed system role: %v", err)
	}

	edited := system
	edited.IsSystem = false
	edited.Permissions = PermissionSet{PermManageRoles}
	if err := catalog.SaveRole(ctx, &edited); err != ErrSystemRole {
		t.Errorf("expected ErrSystemRole, got %v", err)
	}

	if err := catalog.DeleteRole(ctx, system.ID); err == nil {
		t.Error("expected delete of system role to fail")
	}
}
