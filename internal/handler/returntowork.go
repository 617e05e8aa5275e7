package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/service"
)

const planBodyLimit = 1 << 20

// ReturnToWorkHandler saves return-to-work plans.
type ReturnToWorkHandler struct {
	plans  *service.ReturnToWorkService
	logger *slog.Logger
}

func NewReturnToWorkHandler(plans *service.ReturnToWorkService, logger *slog.Logger) *ReturnToWorkHandler {
	return &ReturnToWorkHandler{plans: plans, logger: logger}
}

// RegisterRoutes registers POST /api/return-to-work-plans.
func (h *ReturnToWorkHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/return-to-work-plans", requireUser(http.HandlerFunc(h.Create)))
}

// Create handles POST /api/return-to-work-plans.
func (h *ReturnToWorkHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var f form.ReturnToWorkForm
	if err := decodeJSON(r, planBodyLimit, &f); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan, err := h.plans.Save(r.Context(), viewer, &f)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}
