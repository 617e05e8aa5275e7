package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/service"
)

// ReferenceHandler serves the fixed data a client needs to render forms.
type ReferenceHandler struct {
	prefill *service.PrefillService
	logger  *slog.Logger
}

func NewReferenceHandler(prefill *service.PrefillService, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{prefill: prefill, logger: logger}
}

// RegisterRoutes registers the reference data routes. The body diagram is
// public; the rest require a user.
//
// Routes:
// - GET /assets/body-diagram.png -> BodyDiagram
// - GET /api/vocabularies        -> Vocabularies
// - GET /api/me/prefill          -> Prefill
func (h *ReferenceHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /assets/body-diagram.png", h.BodyDiagram)
	mux.Handle("GET /api/vocabularies", requireUser(http.HandlerFunc(h.Vocabularies)))
	mux.Handle("GET /api/me/prefill", requireUser(http.HandlerFunc(h.Prefill)))
}

// VocabulariesResponse lists every option group and the form's required
// fields in validation order.
type VocabulariesResponse struct {
	Groups         map[string][]string `json:"groups"`
	RequiredFields []string            `json:"requiredFields"`
}

// Vocabularies handles GET /api/vocabularies.
func (h *ReferenceHandler) Vocabularies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VocabulariesResponse{
		Groups:         domain.Vocabularies,
		RequiredFields: form.RequiredFields(),
	})
}

// Prefill handles GET /api/me/prefill.
func (h *ReferenceHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.prefill.NewForm(r.Context(), viewer))
}

// BodyDiagram handles GET /assets/body-diagram.png.
func (h *ReferenceHandler) BodyDiagram(w http.ResponseWriter, r *http.Request) {
	data := bodymap.ReferencePNG()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
