package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/safetyline/internal/notify"
)

// contactBodyLimit is well above the largest valid enquiry.
const contactBodyLimit = 64 << 10

// ContactSubmitter forwards a contact enquiry. *notify.ContactDesk
// implements it.
type ContactSubmitter interface {
	Submit(ctx context.Context, req notify.ContactRequest) error
}

// ContactHandler serves the public contact form. It needs no user token.
type ContactHandler struct {
	desk   ContactSubmitter
	logger *slog.Logger
}

func NewContactHandler(desk ContactSubmitter, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{desk: desk, logger: logger}
}

// RegisterRoutes registers the contact route.
//
// Routes:
// - POST /api/contact -> Submit
func (h *ContactHandler) RegisterRoutes(mux *http.ServeMux, rateLimit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/contact", rateLimit(http.HandlerFunc(h.Submit)))
}

// Submit handles POST /api/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req notify.ContactRequest
	if err := decodeJSON(r, contactBodyLimit, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.desk.Submit(r.Context(), req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Form submitted successfully!",
	})
}
