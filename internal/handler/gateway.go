package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/notify"
)

// gatewayBodyLimit covers a full report plus an inline body-map image.
const gatewayBodyLimit = 12 << 20

// GatewayHandler exposes the mail gateway. It is authorized by the shared
// gateway secret, not by a user token.
type GatewayHandler struct {
	gateway *notify.Gateway
	logger  *slog.Logger
}

func NewGatewayHandler(gateway *notify.Gateway, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{gateway: gateway, logger: logger}
}

// RegisterRoutes registers the gateway routes.
//
// Routes:
// - POST /api/send-email          -> operator notification
// - POST /api/send-employee-email -> employee notification
func (h *GatewayHandler) RegisterRoutes(mux *http.ServeMux, rateLimit func(http.Handler) http.Handler) {
	mux.Handle("POST "+notify.OperatorPath, rateLimit(h.dispatch(domain.NotificationOperator)))
	mux.Handle("POST "+notify.EmployeePath, rateLimit(h.dispatch(domain.NotificationEmployee)))
}

func (h *GatewayHandler) dispatch(kind domain.NotificationKind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, gatewayBodyLimit)
		err := h.gateway.Dispatch(r.Context(), kind, auth.BearerToken(r), body)
		if err == nil {
			writeJSON(w, http.StatusOK, notify.Response{Success: true})
			return
		}

		switch {
		case errors.Is(err, notify.ErrUnauthorized):
			h.logger.Warn("gateway credential rejected", "kind", string(kind), "remote_addr", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, notify.Response{Error: "Unauthorized"})
		case domain.ErrorCode(err) == domain.EINVALID:
			h.logger.Info("gateway payload rejected", "kind", string(kind), "error", err)
			writeJSON(w, http.StatusBadRequest, notify.Response{Error: domain.ErrorMessage(err)})
		default:
			h.logger.Error("gateway send failed", "kind", string(kind), "error", err)
			writeJSON(w, http.StatusInternalServerError, notify.Response{Error: "Failed to send email"})
		}
	})
}
