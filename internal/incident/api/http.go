// Package api exposes the incident workflow over HTTP. Handlers only
// orchestrate: authorization and transition rules live in the domain
// aggregate, persistence in the store.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/config"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/metrics"
	"github.com/safetrack/platform/internal/shared/types"
)

// LocationValidator checks reporter-supplied location fields against the
// building directory. A nil validator accepts everything.
type LocationValidator interface {
	ValidateLocation(ctx context.Context, loc domain.Location) error
}

// Handler provides HTTP handlers for the incident module.
type Handler struct {
	repo      domain.Repository
	profiles  principal.ProfileRepository
	catalog   *role.Catalog
	locations LocationValidator
	media     config.MediaConfig
}

// NewHandler creates a new incident handler. locations may be nil; an
// empty media base URL disables the proof-attachment origin check.
func NewHandler(repo domain.Repository, profiles principal.ProfileRepository, catalog *role.Catalog, locations LocationValidator, media config.MediaConfig) *Handler {
	return &Handler{repo: repo, profiles: profiles, catalog: catalog, locations: locations, media: media}
}

// Routes registers the incident routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListIncidents)
	r.Post("/", h.CreateIncident)

	r.Route("/{incidentID}", func(r chi.Router) {
		r.Get("/", h.GetIncident)
		r.Get("/history", h.GetHistory)
		r.Post("/status", h.UpdateStatus)
		r.Post("/assign", h.AssignResponder)
	})

	return r
}

type CreateIncidentRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    domain.Location `json:"location"`
	Category    string          `json:"category"`
	Priority    domain.Priority `json:"priority"`
}

type UpdateStatusRequest struct {
	Status   string `json:"status"`
	Note     string `json:"note"`
	ProofRef string `json:"proof_ref,omitempty"`
}

type AssignRequest struct {
	ResponderID types.ID `json:"responder_id"`
}

func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	actor := principal.FromContext(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("not authenticated"))
		return
	}

	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := h.validateLocation(r.Context(), req.Location); err != nil {
		writeError(w, err)
		return
	}

	inc, err := domain.NewIncident(actor, domain.CreateFields{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Save(r.Context(), inc); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordIncidentCreated(inc.Category, string(inc.Priority))
	writeJSON(w, http.StatusCreated, inc)
}

// ListIncidents returns the role-scoped incident list: reporters see
// their own, responders their assignments, reviewers and admins all,
// with an optional awaiting-assignment or status filter.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	actor := principal.FromContext(r.Context())
	if actor == nil || !actor.HasPermission(role.PermViewIncidents) {
		writeError(w, errors.Authorization(string(role.PermViewIncidents)))
		return
	}

	var filter domain.ListFilter
	switch actor.BaseRole {
	case role.BaseReviewer, role.BaseAdmin:
		if r.URL.Query().Get("awaiting") == "true" {
			filter.AwaitingAssignment = true
		}
	case role.BaseResponder:
		uid := actor.UID
		filter.AssignedResponder = &uid
	default:
		uid := actor.UID
		filter.ReporterID = &uid
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			writeError(w, errors.BadRequest("unknown status"))
			return
		}
		filter.Status = &status
	}

	incidents, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  incidents,
		"total": len(incidents),
	})
}

func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, actor := h.getIncidentAndActor(w, r)
	if inc == nil {
		return
	}
	if !inc.CanView(actor) {
		writeError(w, errors.Authorization(string(role.PermViewIncidents)))
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	inc, actor := h.getIncidentAndActor(w, r)
	if inc == nil {
		return
	}
	if !inc.CanView(actor) {
		writeError(w, errors.Authorization(string(role.PermViewIncidents)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  inc.StatusHistory,
		"total": len(inc.StatusHistory),
	})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	inc, actor := h.getIncidentAndActor(w, r)
	if inc == nil {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	requested, ok := domain.ParseStatus(req.Status)
	if !ok {
		writeError(w, errors.BadRequest("unknown status"))
		return
	}

	if err := h.checkProofRef(req.ProofRef); err != nil {
		metrics.RecordTransitionRejected("validation")
		writeError(w, err)
		return
	}

	from := inc.Status
	if err := inc.ApplyTransition(requested, req.Note, actor, req.ProofRef); err != nil {
		metrics.RecordTransitionRejected(rejectionReason(err))
		writeError(w, err)
		return
	}

	if err := h.repo.Save(r.Context(), inc); err != nil {
		if stderrors.Is(err, errors.ErrConcurrencyConflict) {
			metrics.RecordTransitionRejected("conflict")
		}
		writeError(w, err)
		return
	}

	metrics.RecordTransition(string(from), string(requested))
	writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) AssignResponder(w http.ResponseWriter, r *http.Request) {
	inc, actor := h.getIncidentAndActor(w, r)
	if inc == nil {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	profile, err := h.profiles.FindByUID(r.Context(), req.ResponderID)
	if err != nil {
		writeError(w, err)
		return
	}
	responder := &principal.Principal{
		UID:            profile.UID,
		Email:          profile.Email,
		DisplayName:    profile.DisplayName,
		BaseRole:       profile.BaseRole,
		RoleID:         profile.RoleID,
		Specialization: profile.Specialization,
		Permissions:    h.catalog.ResolvePermissions(r.Context(), profile.RoleID, profile.BaseRole),
	}

	if err := inc.AssignResponder(responder, actor); err != nil {
		metrics.RecordTransitionRejected(rejectionReason(err))
		writeError(w, err)
		return
	}

	if err := h.repo.Save(r.Context(), inc); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAssignment()
	writeJSON(w, http.StatusOK, inc)
}

// --- Helpers ---

func (h *Handler) getIncidentAndActor(w http.ResponseWriter, r *http.Request) (*domain.Incident, *principal.Principal) {
	actor := principal.FromContext(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("not authenticated"))
		return nil, nil
	}

	id, err := types.ParseID(chi.URLParam(r, "incidentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid incident ID"))
		return nil, nil
	}

	inc, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, nil
	}

	return inc, actor
}

// validateLocation consults the building directory when available. A
// broken directory never blocks incident creation.
func (h *Handler) validateLocation(ctx context.Context, loc domain.Location) error {
	if h.locations == nil {
		return nil
	}
	err := h.locations.ValidateLocation(ctx, loc)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errors.ErrExternalService) {
		log.Printf("location validation unavailable, accepting as given: %v", err)
		return nil
	}
	return err
}

// checkProofRef accepts only attachments served by the configured media
// store. Installations without a media store leave the base URL empty
// and carry the reference as given.
func (h *Handler) checkProofRef(ref string) error {
	if ref == "" || h.media.BaseURL == "" {
		return nil
	}
	if !strings.HasPrefix(ref, h.media.BaseURL) {
		return errors.Validation("proof attachment must come from the media store",
			map[string]string{"proof_ref": ref})
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrAuthorization):
		return "authorization"
	case stderrors.Is(err, errors.ErrIllegalTransition):
		return "illegal_transition"
	case stderrors.Is(err, errors.ErrValidation):
		return "validation"
	case stderrors.Is(err, errors.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "other"
	}
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
