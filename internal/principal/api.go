package principal

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/metrics"
	"github.com/safetrack/platform/internal/shared/types"
)

// Handler provides HTTP handlers for principal resolution and profiles.
type Handler struct {
	resolver *Resolver
	profiles ProfileRepository
}

// NewHandler creates a new principal handler.
func NewHandler(resolver *Resolver, profiles ProfileRepository) *Handler {
	return &Handler{resolver: resolver, profiles: profiles}
}

// MeRoutes registers the current-user routes.
func (h *Handler) MeRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Me)
	r.Put("/", h.UpdateMe)
	r.Post("/push-token", h.SavePushToken)

	return r
}

// UserRoutes registers the admin user-management routes.
func (h *Handler) UserRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListUsers)
	r.Patch("/{userID}", h.UpdateUser)

	return r
}

type UpdateMeRequest struct {
	DisplayName    string        `json:"display_name"`
	BaseRole       role.BaseRole `json:"base_role,omitempty"`
	Specialization string        `json:"specialization,omitempty"`
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

type UpdateUserRequest struct {
	BaseRole *role.BaseRole `json:"base_role,omitempty"`
	RoleID   *types.ID      `json:"role_id,omitempty"`
}

// Me returns the caller's resolution: 401 when unauthenticated, a
// distinguished profile_incomplete payload when no profile exists yet.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	resolution := ResolutionFromContext(r.Context())

	switch resolution.State {
	case StateUnauthenticated:
		writeError(w, errors.Unauthorized("not authenticated"))
	case StateProfileIncomplete:
		writeJSON(w, http.StatusOK, map[string]any{
			"state": resolution.State,
			"uid":   resolution.UID,
			"email": resolution.Email,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"state":     resolution.State,
			"principal": resolution.Principal,
		})
	}
}

// UpdateMe creates or updates the caller's profile. A first write
// completes a profile_incomplete resolution; the base role is chosen at
// setup and never changed through this endpoint afterwards.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	resolution := ResolutionFromContext(r.Context())
	if resolution.State == StateUnauthenticated {
		writeError(w, errors.Unauthorized("not authenticated"))
		return
	}

	var req UpdateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.DisplayName == "" {
		writeError(w, errors.Validation("display name is required", map[string]string{"field": "display_name"}))
		return
	}

	profile := &Profile{
		UID:            resolution.UID,
		Email:          resolution.Email,
		DisplayName:    req.DisplayName,
		Specialization: req.Specialization,
	}

	if resolution.State == StateResolved {
		// Existing profile: role fields are managed by admins only.
		profile.BaseRole = resolution.Principal.BaseRole
		profile.RoleID = resolution.Principal.RoleID
	} else {
		base := req.BaseRole
		if base == "" {
			base = role.BaseReporter
		}
		if !base.Valid() {
			writeError(w, errors.Validation("unknown base role", map[string]string{"field": "base_role"}))
			return
		}
		profile.BaseRole = base
	}

	if err := h.profiles.Save(r.Context(), profile); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// SavePushToken stores the caller's device push token.
func (h *Handler) SavePushToken(w http.ResponseWriter, r *http.Request) {
	resolution := ResolutionFromContext(r.Context())
	if resolution.State != StateResolved {
		writeError(w, errors.Unauthorized("not authenticated"))
		return
	}

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Token == "" {
		writeError(w, errors.Validation("token is required", map[string]string{"field": "token"}))
		return
	}

	if err := h.profiles.SavePushToken(r.Context(), resolution.UID, req.Token); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUsers lists profiles for the admin console.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, role.PermManageUsers) {
		return
	}

	filter := ListProfilesFilter{Search: r.URL.Query().Get("search")}
	if b := r.URL.Query().Get("base_role"); b != "" {
		base, ok := role.ParseBaseRole(b)
		if !ok {
			writeError(w, errors.BadRequest("unknown base role"))
			return
		}
		filter.BaseRole = &base
	}

	profiles, err := h.profiles.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  profiles,
		"total": len(profiles),
	})
}

// UpdateUser changes another user's role assignment.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, role.PermManageUsers) {
		return
	}

	uid, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid user ID"))
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	profile, err := h.profiles.FindByUID(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.BaseRole != nil {
		if !req.BaseRole.Valid() {
			writeError(w, errors.Validation("unknown base role", map[string]string{"field": "base_role"}))
			return
		}
		profile.BaseRole = *req.BaseRole
	}
	if req.RoleID != nil {
		profile.RoleID = *req.RoleID
	}

	if err := h.profiles.Save(r.Context(), profile); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) require(w http.ResponseWriter, r *http.Request, perm role.Permission) bool {
	p := FromContext(r.Context())
	if p == nil || !p.HasPermission(perm) {
		metrics.RecordAuthorizationDecision(string(perm), false)
		writeError(w, errors.Authorization(string(perm)))
		return false
	}
	metrics.RecordAuthorizationDecision(string(perm), true)
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
