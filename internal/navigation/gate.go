// Package navigation decides which screen an actor may move to next.
// The reachable screen graph is data: one edge table keyed by screen and
// base role, plus a small set of permission-gated screens. Keeping the
// graph declarative makes every role's reachable surface inspectable.
package navigation

import (
	"sync"

	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
)

// Screen identifies one state of the client-side router.
type Screen string

const (
	ScreenLogin        Screen = "login"
	ScreenRegister     Screen = "register"
	ScreenProfileSetup Screen = "profile-setup"

	ScreenHome             Screen = "home"
	ScreenMyIncidents      Screen = "my-incidents"
	ScreenNewIncident      Screen = "new-incident"
	ScreenIncidentDetails  Screen = "incident-details"
	ScreenUpdateStatus     Screen = "update-status"
	ScreenAssignResponder  Screen = "assign-responder"
	ScreenIncidentMessages Screen = "incident-messages"
	ScreenNotifications    Screen = "notifications"
	ScreenProfile          Screen = "profile"

	ScreenResponderDashboard Screen = "responder-dashboard"
	ScreenReviewerDashboard  Screen = "reviewer-dashboard"

	ScreenAdminUsers     Screen = "admin-user-management"
	ScreenAdminRoles     Screen = "admin-role-management"
	ScreenAdminAnalytics Screen = "admin-analytics"
)

// screens is the closed set of valid screen values on the wire.
var screens = map[Screen]bool{
	ScreenLogin:        true,
	ScreenRegister:     true,
	ScreenProfileSetup: true,

	ScreenHome:             true,
	ScreenMyIncidents:      true,
	ScreenNewIncident:      true,
	ScreenIncidentDetails:  true,
	ScreenUpdateStatus:     true,
	ScreenAssignResponder:  true,
	ScreenIncidentMessages: true,
	ScreenNotifications:    true,
	ScreenProfile:          true,

	ScreenResponderDashboard: true,
	ScreenReviewerDashboard:  true,

	ScreenAdminUsers:     true,
	ScreenAdminRoles:     true,
	ScreenAdminAnalytics: true,
}

// ParseScreen validates a wire value against the known screen set.
func ParseScreen(s string) (Screen, bool) {
	screen := Screen(s)
	return screen, screens[screen]
}

// homes maps each base role to its landing screen after resolution.
var homes = map[role.BaseRole]Screen{
	role.BaseReporter:  ScreenHome,
	role.BaseResponder: ScreenResponderDashboard,
	role.BaseReviewer:  ScreenReviewerDashboard,
	role.BaseAdmin:     ScreenAdminUsers,
}

// incidentContext lists the screens that only make sense with a selected
// incident. The selection must be set on the session before entering.
var incidentContext = map[Screen]bool{
	ScreenIncidentDetails:  true,
	ScreenUpdateStatus:     true,
	ScreenAssignResponder:  true,
	ScreenIncidentMessages: true,
}

// gated lists screens that require a permission on top of a legal edge.
var gated = map[Screen]role.Permission{
	ScreenAdminRoles:     role.PermManageRoles,
	ScreenAdminAnalytics: role.PermViewAnalytics,
}

// entryEdges is the pre-authentication graph. Leaving it happens through
// Reevaluate, not through an edge.
var entryEdges = map[Screen][]Screen{
	ScreenLogin:        {ScreenRegister},
	ScreenRegister:     {ScreenLogin},
	ScreenProfileSetup: {ScreenLogin},
}

// edges is the authenticated screen graph per base role. Absent entries
// mean the screen is unreachable for that role.
var edges = map[Screen]map[role.BaseRole][]Screen{
	ScreenHome: {
		role.BaseReporter: {ScreenMyIncidents, ScreenNewIncident, ScreenIncidentDetails, ScreenNotifications, ScreenProfile},
	},
	ScreenMyIncidents: {
		role.BaseReporter:  {ScreenHome, ScreenIncidentDetails, ScreenNotifications, ScreenProfile},
		role.BaseResponder: {ScreenResponderDashboard, ScreenIncidentDetails, ScreenNotifications, ScreenProfile},
	},
	ScreenNewIncident: {
		role.BaseReporter: {ScreenHome, ScreenMyIncidents},
	},
	ScreenIncidentDetails: {
		role.BaseReporter:  {ScreenHome, ScreenMyIncidents, ScreenIncidentMessages, ScreenNotifications, ScreenProfile},
		role.BaseResponder: {ScreenResponderDashboard, ScreenMyIncidents, ScreenUpdateStatus, ScreenIncidentMessages, ScreenNotifications, ScreenProfile},
		role.BaseReviewer:  {ScreenReviewerDashboard, ScreenAssignResponder, ScreenIncidentMessages, ScreenNotifications, ScreenProfile},
		role.BaseAdmin:     {ScreenReviewerDashboard, ScreenAssignResponder, ScreenIncidentMessages, ScreenNotifications, ScreenProfile},
	},
	ScreenUpdateStatus: {
		role.BaseResponder: {ScreenIncidentDetails, ScreenResponderDashboard},
		role.BaseReviewer:  {ScreenIncidentDetails, ScreenReviewerDashboard},
	},
	ScreenAssignResponder: {
		role.BaseReviewer: {ScreenIncidentDetails, ScreenReviewerDashboard},
		role.BaseAdmin:    {ScreenIncidentDetails, ScreenReviewerDashboard},
	},
	ScreenIncidentMessages: {
		role.BaseReporter:  {ScreenIncidentDetails},
		role.BaseResponder: {ScreenIncidentDetails},
		role.BaseReviewer:  {ScreenIncidentDetails},
		role.BaseAdmin:     {ScreenIncidentDetails},
	},
	ScreenNotifications: {
		role.BaseReporter:  {ScreenHome, ScreenMyIncidents, ScreenIncidentDetails, ScreenProfile},
		role.BaseResponder: {ScreenResponderDashboard, ScreenIncidentDetails, ScreenProfile},
		role.BaseReviewer:  {ScreenReviewerDashboard, ScreenIncidentDetails, ScreenProfile},
		role.BaseAdmin:     {ScreenAdminUsers, ScreenIncidentDetails, ScreenProfile},
	},
	ScreenProfile: {
		role.BaseReporter:  {ScreenHome, ScreenMyIncidents, ScreenNotifications},
		role.BaseResponder: {ScreenResponderDashboard, ScreenNotifications},
		role.BaseReviewer:  {ScreenReviewerDashboard, ScreenNotifications},
		role.BaseAdmin:     {ScreenAdminUsers, ScreenNotifications},
	},
	ScreenResponderDashboard: {
		role.BaseResponder: {ScreenMyIncidents, ScreenIncidentDetails, ScreenUpdateStatus, ScreenNotifications, ScreenProfile},
	},
	ScreenReviewerDashboard: {
		role.BaseReviewer: {ScreenIncidentDetails, ScreenAssignResponder, ScreenNotifications, ScreenProfile},
		role.BaseAdmin:    {ScreenIncidentDetails, ScreenAssignResponder, ScreenAdminUsers, ScreenNotifications, ScreenProfile},
	},
	ScreenAdminUsers: {
		role.BaseAdmin: {ScreenAdminRoles, ScreenAdminAnalytics, ScreenReviewerDashboard, ScreenNotifications, ScreenProfile},
	},
	ScreenAdminRoles: {
		role.BaseAdmin: {ScreenAdminUsers, ScreenAdminAnalytics, ScreenNotifications, ScreenProfile},
	},
	ScreenAdminAnalytics: {
		role.BaseAdmin: {ScreenAdminUsers, ScreenAdminRoles, ScreenNotifications, ScreenProfile},
	},
}

// Gate evaluates the screen graph against a principal.
type Gate struct{}

// NewGate creates a navigation gate.
func NewGate() *Gate {
	return &Gate{}
}

// Home returns the landing screen for a resolution outcome.
func (g *Gate) Home(res principal.Resolution) Screen {
	switch res.State {
	case principal.StateProfileIncomplete:
		return ScreenProfileSetup
	case principal.StateResolved:
		if home, ok := homes[res.Principal.BaseRole]; ok {
			return home
		}
		return ScreenLogin
	default:
		return ScreenLogin
	}
}

// Allowed returns the screens reachable from the given screen for a
// principal, permission gates applied. A nil principal walks the
// pre-authentication graph.
func (g *Gate) Allowed(p *principal.Principal, from Screen) []Screen {
	if p == nil {
		return entryEdges[from]
	}

	candidates := edges[from][p.BaseRole]
	out := make([]Screen, 0, len(candidates))
	for _, screen := range candidates {
		if perm, isGated := gated[screen]; isGated && !p.HasPermission(perm) {
			continue
		}
		out = append(out, screen)
	}
	return out
}

// CanEnter reports whether the edge from one screen to another is legal
// for the principal.
func (g *Gate) CanEnter(p *principal.Principal, from, to Screen) bool {
	for _, screen := range g.Allowed(p, from) {
		if screen == to {
			return true
		}
	}
	return false
}

// Router is the per-session finite-state machine over the screen graph.
// It owns the current screen; all moves go through Navigate so the edge
// table and permission gates are never bypassed.
type Router struct {
	gate *Gate
	sess *principal.Session

	mu      sync.Mutex
	current Screen
}

// NewRouter creates a router for one session, starting at the login
// screen until an identity is resolved.
func NewRouter(gate *Gate, sess *principal.Session) *Router {
	return &Router{gate: gate, sess: sess, current: ScreenLogin}
}

// Current returns the screen the session is on.
func (r *Router) Current() Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate moves the session to the target screen if the edge is legal
// for the session's principal. Screens that operate on one incident
// require a selected incident on the session.
func (r *Router) Navigate(target Screen) (Screen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.sess.Principal()
	if !r.gate.CanEnter(p, r.current, target) {
		return r.current, errors.Authorization("navigate:" + string(target))
	}
	if incidentContext[target] {
		if _, ok := r.sess.SelectedIncident(); !ok {
			return r.current, errors.Validation("an incident must be selected first", map[string]string{"screen": string(target)})
		}
	}

	r.current = target
	return r.current, nil
}

// Reevaluate reacts to an identity change: the session is rebound to the
// resolution's principal and the router is forced to the matching entry
// or home screen. An identity that is lost lands back on login.
func (r *Router) Reevaluate(res principal.Resolution) Screen {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch res.State {
	case principal.StateResolved:
		r.sess.Begin(res.Principal)
	default:
		r.sess.End()
	}
	r.current = r.gate.Home(res)
	return r.current
}
