package navigation

import (
	stderrors "errors"
	"testing"

	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

func resolvedAs(base role.BaseRole) principal.Resolution {
	return principal.Resolution{
		State: principal.StateResolved,
		Principal: &principal.Principal{
			UID:         types.NewID(),
			DisplayName: string(base),
			BaseRole:    base,
			Permissions: role.Defaults(base),
		},
	}
}

func TestHomePerResolution(t *testing.T) {
	gate := NewGate()

	tests := []struct {
		name string
		res  principal.Resolution
		want Screen
	}{
		{"unauthenticated", principal.Resolution{State: principal.StateUnauthenticated}, ScreenLogin},
		{"profile incomplete", principal.Resolution{State: principal.StateProfileIncomplete, UID: types.NewID()}, ScreenProfileSetup},
		{"reporter", resolvedAs(role.BaseReporter), ScreenHome},
		{"responder", resolvedAs(role.BaseResponder), ScreenResponderDashboard},
		{"reviewer", resolvedAs(role.BaseReviewer), ScreenReviewerDashboard},
		{"admin", resolvedAs(role.BaseAdmin), ScreenAdminUsers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Home(tt.res); got != tt.want {
				t.Errorf("Home() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileIncompleteNeverReachesADashboard(t *testing.T) {
	gate := NewGate()
	home := gate.Home(principal.Resolution{State: principal.StateProfileIncomplete, UID: types.NewID()})
	if home != ScreenProfileSetup {
		t.Fatalf("home = %q, want profile setup", home)
	}

	dashboards := []Screen{ScreenHome, ScreenResponderDashboard, ScreenReviewerDashboard, ScreenAdminUsers}
	for _, target := range dashboards {
		if gate.CanEnter(nil, home, target) {
			t.Errorf("profile setup must not reach %q", target)
		}
	}
}

func TestEntryGraph(t *testing.T) {
	gate := NewGate()

	if !gate.CanEnter(nil, ScreenLogin, ScreenRegister) {
		t.Error("login -> register should be open")
	}
	if !gate.CanEnter(nil, ScreenRegister, ScreenLogin) {
		t.Error("register -> login should be open")
	}
	if gate.CanEnter(nil, ScreenLogin, ScreenHome) {
		t.Error("login -> home must go through identity resolution")
	}
}

func TestRoleScopedEdges(t *testing.T) {
	gate := NewGate()
	reporter := resolvedAs(role.BaseReporter).Principal
	responder := resolvedAs(role.BaseResponder).Principal
	reviewer := resolvedAs(role.BaseReviewer).Principal

	tests := []struct {
		name string
		p    *principal.Principal
		from Screen
		to   Screen
		want bool
	}{
		{"reporter files incident", reporter, ScreenHome, ScreenNewIncident, true},
		{"reporter cannot assign", reporter, ScreenIncidentDetails, ScreenAssignResponder, false},
		{"reporter cannot update status", reporter, ScreenIncidentDetails, ScreenUpdateStatus, false},
		{"responder updates status", responder, ScreenIncidentDetails, ScreenUpdateStatus, true},
		{"responder cannot assign", responder, ScreenIncidentDetails, ScreenAssignResponder, false},
		{"reviewer assigns", reviewer, ScreenIncidentDetails, ScreenAssignResponder, true},
		{"reviewer has no reporter home", reviewer, ScreenHome, ScreenNewIncident, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.CanEnter(tt.p, tt.from, tt.to); got != tt.want {
				t.Errorf("CanEnter(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPermissionGatedScreens(t *testing.T) {
	gate := NewGate()

	admin := resolvedAs(role.BaseAdmin).Principal
	if !gate.CanEnter(admin, ScreenAdminUsers, ScreenAdminRoles) {
		t.Error("full admin should reach role management")
	}

	// An admin-family custom role stripped of manage_roles loses the screen
	// even though the edge exists for the base role.
	limited := &principal.Principal{
		UID:      types.NewID(),
		BaseRole: role.BaseAdmin,
		Permissions: role.PermissionSet{
			role.PermViewIncidents, role.PermManageUsers,
		},
	}
	if gate.CanEnter(limited, ScreenAdminUsers, ScreenAdminRoles) {
		t.Error("role management requires manage_roles")
	}
	if gate.CanEnter(limited, ScreenAdminUsers, ScreenAdminAnalytics) {
		t.Error("analytics requires view_analytics")
	}
}

func TestRouterRequiresIncidentContext(t *testing.T) {
	sess := principal.NewSession()
	router := NewRouter(NewGate(), sess)
	router.Reevaluate(resolvedAs(role.BaseReporter))

	if _, err := router.Navigate(ScreenIncidentDetails); err == nil {
		t.Fatal("incident details without a selection should be rejected")
	} else if !stderrors.Is(err, errors.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if router.Current() != ScreenHome {
		t.Errorf("rejected move must not change the screen, got %q", router.Current())
	}

	sess.SelectIncident(types.NewID())
	if _, err := router.Navigate(ScreenIncidentDetails); err != nil {
		t.Fatalf("Navigate with selection: %v", err)
	}
	if router.Current() != ScreenIncidentDetails {
		t.Errorf("current = %q, want incident details", router.Current())
	}
}

func TestRouterRejectsIllegalEdge(t *testing.T) {
	router := NewRouter(NewGate(), principal.NewSession())
	router.Reevaluate(resolvedAs(role.BaseReporter))

	_, err := router.Navigate(ScreenAdminRoles)
	if err == nil {
		t.Fatal("reporter must not reach role management")
	}
	if !stderrors.Is(err, errors.ErrAuthorization) {
		t.Errorf("want authorization error, got %v", err)
	}
}

func TestReevaluateOnIdentityChange(t *testing.T) {
	sess := principal.NewSession()
	router := NewRouter(NewGate(), sess)

	if got := router.Reevaluate(resolvedAs(role.BaseAdmin)); got != ScreenAdminUsers {
		t.Errorf("admin after login lands on %q, want admin home", got)
	}

	// Signing out forces login and tears the session down.
	if got := router.Reevaluate(principal.Resolution{State: principal.StateUnauthenticated}); got != ScreenLogin {
		t.Errorf("lost identity lands on %q, want login", got)
	}
	if sess.Principal() != nil {
		t.Error("session principal should be cleared on sign-out")
	}

	if got := router.Reevaluate(principal.Resolution{State: principal.StateProfileIncomplete, UID: types.NewID()}); got != ScreenProfileSetup {
		t.Errorf("pending profile lands on %q, want profile setup", got)
	}
}
