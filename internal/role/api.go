package role

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/metrics"
	"github.com/safetrack/platform/internal/shared/types"
)

// PermissionSource yields the caller's effective permission set. Wired to
// the principal middleware at composition time.
type PermissionSource func(ctx context.Context) (PermissionSet, bool)

// Handler provides HTTP handlers for the role catalog.
type Handler struct {
	catalog *Catalog
	perms   PermissionSource
}

// NewHandler creates a new role handler.
func NewHandler(catalog *Catalog, perms PermissionSource) *Handler {
	return &Handler{catalog: catalog, perms: perms}
}

// Routes registers the role routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRoles)
	r.Post("/", h.SaveRole)

	r.Route("/{roleID}", func(r chi.Router) {
		r.Put("/", h.UpdateRole)
		r.Delete("/", h.DeleteRole)
	})

	return r
}

type SaveRoleRequest struct {
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	BaseRole    BaseRole      `json:"base_role"`
	Permissions PermissionSet `json:"permissions"`
	Color       string        `json:"color,omitempty"`
	Icon        string        `json:"icon,omitempty"`
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermManageRoles) {
		return
	}

	filter := ListFilter{}
	if b := r.URL.Query().Get("base_role"); b != "" {
		base, ok := ParseBaseRole(b)
		if !ok {
			writeError(w, errors.BadRequest("unknown base role"))
			return
		}
		filter.BaseRole = &base
	}

	roles, err := h.catalog.ListCustomRoles(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  roles,
		"total": len(roles),
	})
}

func (h *Handler) SaveRole(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermManageRoles) {
		return
	}

	var req SaveRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	role := &Role{
		Label:       req.Label,
		Description: req.Description,
		BaseRole:    req.BaseRole,
		Permissions: req.Permissions,
		Color:       req.Color,
		Icon:        req.Icon,
	}

	if err := h.catalog.SaveRole(r.Context(), role); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermManageRoles) {
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid role ID"))
		return
	}

	var req SaveRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	role := &Role{
		ID:          id,
		Label:       req.Label,
		Description: req.Description,
		BaseRole:    req.BaseRole,
		Permissions: req.Permissions,
		Color:       req.Color,
		Icon:        req.Icon,
	}

	if err := h.catalog.SaveRole(r.Context(), role); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermManageRoles) {
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid role ID"))
		return
	}

	if err := h.catalog.DeleteRole(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// require enforces a permission on the caller, failing closed when no
// permission set is present in the context.
func (h *Handler) require(w http.ResponseWriter, r *http.Request, perm Permission) bool {
	set, ok := h.perms(r.Context())
	if !ok || !set.Has(perm) {
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
