package navigation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/shared/errors"
)

// Handler answers navigation queries for clients that keep a local
// router in lockstep with the server-side screen graph.
type Handler struct {
	gate *Gate
}

// NewHandler creates a navigation handler over the gate.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Routes registers the navigation routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetMap)
	return r
}

// GetMap returns the caller's landing screen and the screens reachable
// from the given position. Without a from parameter the landing screen
// is the position; a caller whose profile is incomplete is held on the
// entry graph.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	res := principal.ResolutionFromContext(r.Context())
	home := h.gate.Home(res)

	from := home
	if q := r.URL.Query().Get("from"); q != "" {
		screen, ok := ParseScreen(q)
		if !ok {
			writeError(w, errors.BadRequest("unknown screen"))
			return
		}
		from = screen
	}

	allowed := h.gate.Allowed(res.Principal, from)
	if allowed == nil {
		allowed = []Screen{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"home":    home,
		"from":    from,
		"allowed": allowed,
	})
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
