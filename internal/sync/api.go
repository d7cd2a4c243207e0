package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
)

// Handler streams live incident updates to HTTP clients as server-sent
// events. Each request holds one subscription; the stream ends when the
// client disconnects, a server timeout closes the connection, or the
// feed drops. Reconnecting is lossless because every subscription opens
// with a full snapshot.
type Handler struct {
	manager *Manager
}

// NewHandler creates a streaming handler over the subscription manager.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Routes registers the streaming routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/incidents", h.WatchIncidents)
	return r
}

// WatchIncidents opens a server-sent event stream of the caller's
// role-scoped incident list. The current snapshot is sent immediately;
// after that every committed change pushes a fresh one.
func (h *Handler) WatchIncidents(w http.ResponseWriter, r *http.Request) {
	actor := principal.FromContext(r.Context())
	if actor == nil || !actor.HasPermission(role.PermViewIncidents) {
		writeError(w, errors.Authorization(string(role.PermViewIncidents)))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.BadRequest("streaming is not supported on this connection"))
		return
	}

	filter, err := scopedFilter(actor, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	updates := make(chan []domain.Incident, 1)
	failures := make(chan error, 1)
	handle, err := h.manager.Subscribe(r.Context(), filter,
		func(incidents []domain.Incident) {
			// Latest snapshot wins: every delivery carries the full
			// filtered projection, so replacing a stale one is safe.
			select {
			case updates <- incidents:
			default:
				select {
				case <-updates:
				default:
				}
				select {
				case updates <- incidents:
				default:
				}
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		})
	if err != nil {
		writeError(w, err)
		return
	}
	defer handle.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for {
		select {
		case incidents := <-updates:
			writeEvent(w, "incidents", incidents)
			flusher.Flush()
		case err := <-failures:
			writeEvent(w, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		case <-ctx.Done():
			// A closing stream still carries the snapshot it was
			// already given.
			select {
			case incidents := <-updates:
				writeEvent(w, "incidents", incidents)
				flusher.Flush()
			default:
			}
			return
		}
	}
}

// scopedFilter mirrors the listing scope of the incident API: reporters
// watch their own incidents, responders their assignments, reviewers and
// admins everything, with optional awaiting and status narrowing.
func scopedFilter(actor *principal.Principal, query url.Values) (Filter, error) {
	var filter Filter
	switch actor.BaseRole {
	case role.BaseReviewer, role.BaseAdmin:
		if query.Get("awaiting") == "true" {
			filter.AwaitingAssignment = true
		}
	case role.BaseResponder:
		uid := actor.UID
		filter.AssignedResponder = &uid
	default:
		uid := actor.UID
		filter.ReporterID = &uid
	}

	if s := query.Get("status"); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return filter, errors.BadRequest("unknown status")
		}
		filter.Status = &status
	}
	return filter, nil
}

func writeEvent(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
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
