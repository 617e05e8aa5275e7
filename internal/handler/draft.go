package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/draft"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/service"
)

// draftBodyLimit bounds JSON draft requests. Stroke batches are the largest.
const draftBodyLimit = 1 << 20

// DraftHandler serves server-held drafts of incident reports.
type DraftHandler struct {
	drafts    *draft.Registry
	prefill   *service.PrefillService
	listing   *service.ListingService
	submitter Submitter
	maxBody   int64
	logger    *slog.Logger
}

func NewDraftHandler(
	drafts *draft.Registry,
	prefill *service.PrefillService,
	listing *service.ListingService,
	submitter Submitter,
	maxBody int64,
	logger *slog.Logger,
) *DraftHandler {
	return &DraftHandler{
		drafts:    drafts,
		prefill:   prefill,
		listing:   listing,
		submitter: submitter,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// RegisterRoutes registers the draft routes.
//
// Routes:
// - POST   /api/drafts               -> Create
// - GET    /api/drafts/{id}          -> Show
// - PATCH  /api/drafts/{id}          -> Apply
// - POST   /api/drafts/{id}/strokes  -> Draw
// - POST   /api/drafts/{id}/validate -> Validate
// - POST   /api/drafts/{id}/submit   -> Submit
// - DELETE /api/drafts/{id}          -> Discard
func (h *DraftHandler) RegisterRoutes(mux *http.ServeMux, requireUser, rateLimit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/drafts", requireUser(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/drafts/{id}", requireUser(http.HandlerFunc(h.Show)))
	mux.Handle("PATCH /api/drafts/{id}", requireUser(http.HandlerFunc(h.Apply)))
	mux.Handle("POST /api/drafts/{id}/strokes", requireUser(http.HandlerFunc(h.Draw)))
	mux.Handle("POST /api/drafts/{id}/validate", requireUser(http.HandlerFunc(h.Validate)))
	mux.Handle("POST /api/drafts/{id}/submit", rateLimit(requireUser(http.HandlerFunc(h.Submit))))
	mux.Handle("DELETE /api/drafts/{id}", requireUser(http.HandlerFunc(h.Discard)))
}

type createDraftRequest struct {
	FromReport string `json:"fromReport"`
}

type applyRequest struct {
	Ops []draft.Op `json:"ops"`
}

type strokesRequest struct {
	Events []bodymap.Event `json:"events"`
}

// Create handles POST /api/drafts. With fromReport the draft starts from
// the stored report; otherwise it starts blank with the viewer's prefill.
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req createDraftRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, draftBodyLimit, &req); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	var start *form.IncidentForm
	if req.FromReport != "" {
		f, err := h.listing.Open(r.Context(), viewer, req.FromReport)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		start = f
	} else {
		start = h.prefill.NewForm(r.Context(), viewer)
	}

	view := h.drafts.Create(viewer.Email, start)
	h.logger.Info("draft created", "draft_id", view.ID, "viewer", viewer.Email, "from_report", req.FromReport)
	writeJSON(w, http.StatusCreated, view)
}

// Show handles GET /api/drafts/{id}.
func (h *DraftHandler) Show(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	view, err := h.drafts.Get(viewer.Email, r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Apply handles PATCH /api/drafts/{id}. Either every op applies or none.
func (h *DraftHandler) Apply(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req applyRequest
	if err := decodeJSON(r, draftBodyLimit, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	view, err := h.drafts.Apply(viewer.Email, r.PathValue("id"), req.Ops)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Draw handles POST /api/drafts/{id}/strokes.
func (h *DraftHandler) Draw(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req strokesRequest
	if err := decodeJSON(r, draftBodyLimit, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	view, err := h.drafts.Draw(viewer.Email, r.PathValue("id"), req.Events)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Validate handles POST /api/drafts/{id}/validate. A failing form is a 400
// naming the first failing field.
func (h *DraftHandler) Validate(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	view, err := h.drafts.Get(viewer.Email, r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := form.Validate(view.Form); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// Submit handles POST /api/drafts/{id}/submit. Attachments come as a
// multipart body; the form and drawing come from the draft. The draft is
// discarded only when the submission is stored.
func (h *DraftHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.draftSubmit"

	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	id := r.PathValue("id")

	snap, err := h.drafts.Snapshot(viewer.Email, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req := service.SubmitRequest{Form: snap.Form, BodyMap: snap.BodyMap}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				ErrorResponse(w, r, h.logger, domain.TooLarge(op, "request body too large"))
				return
			}
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "expected a multipart form"))
			return
		}
		req.Attachments, err = readUploads(op, r.MultipartForm, fieldAttachments)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	res, err := h.submitter.Submit(r.Context(), viewer, req)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.drafts.Discard(viewer.Email, id); err != nil {
		h.logger.Warn("failed to discard submitted draft", "draft_id", id, "error", err)
	}
	status := http.StatusCreated
	if snap.Form.ReportID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, newSubmissionResponse(res))
}

// Discard handles DELETE /api/drafts/{id}.
func (h *DraftHandler) Discard(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if err := h.drafts.Discard(viewer.Email, r.PathValue("id")); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
