package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/export"
)

// ExportHandler streams generated exports to the caller. Nothing is stored.
type ExportHandler struct {
	exports *export.Service
	logger  *slog.Logger
}

func NewExportHandler(exports *export.Service, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

// RegisterRoutes registers GET /api/exports/{kind}.
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/exports/{kind}", requireUser(http.HandlerFunc(h.Download)))
}

// Download handles GET /api/exports/{kind}?format=xlsx|pdf.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	kind, err := export.ParseKind(r.PathValue("kind"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	file, err := h.exports.Export(r.Context(), viewer, kind, format)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}
