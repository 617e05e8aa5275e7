// Package handler contains the HTTP handlers of the SafetyLine API.
//
// This file implements incident report submission and listing.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/service"
)

// Multipart field names of a submission.
const (
	fieldReport      = "report"
	fieldBodyMap     = "bodyMap"
	fieldCanvasImage = "canvasImage"
	fieldAttachments = "attachments"
	fieldRevision    = "revision"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// Submitter runs one submission. *service.SubmissionService implements it.
type Submitter interface {
	Submit(ctx context.Context, viewer *domain.User, req service.SubmitRequest) (*domain.SubmissionResult, error)
}

// SubmissionResponse is the body returned after a successful submission.
type SubmissionResponse struct {
	*domain.SubmissionResult
	Message string `json:"message"`
}

func newSubmissionResponse(res *domain.SubmissionResult) SubmissionResponse {
	return SubmissionResponse{SubmissionResult: res, Message: res.Message()}
}

// =============================================================================
// Handler Configuration
// =============================================================================

// IncidentHandler handles incident report requests.
type IncidentHandler struct {
	submitter Submitter
	listing   *service.ListingService
	maxBody   int64
	logger    *slog.Logger
}

// NewIncidentHandler creates a new IncidentHandler. maxBody bounds the whole
// request body, attachments included.
func NewIncidentHandler(submitter Submitter, listing *service.ListingService, maxBody int64, logger *slog.Logger) *IncidentHandler {
	return &IncidentHandler{
		submitter: submitter,
		listing:   listing,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the incident report routes.
//
// Routes:
// - POST /api/incident-reports           -> Create
// - PUT  /api/incident-reports/{id}      -> Resubmit
// - GET  /api/incident-reports           -> List
// - GET  /api/incident-reports/{id}      -> Show
// - GET  /api/incident-reports/{id}/form -> Form
func (h *IncidentHandler) RegisterRoutes(mux *http.ServeMux, requireUser, rateLimit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/incident-reports", rateLimit(requireUser(http.HandlerFunc(h.Create))))
	mux.Handle("PUT /api/incident-reports/{id}", rateLimit(requireUser(http.HandlerFunc(h.Resubmit))))
	mux.Handle("GET /api/incident-reports", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/incident-reports/{id}", requireUser(http.HandlerFunc(h.Show)))
	mux.Handle("GET /api/incident-reports/{id}/form", requireUser(http.HandlerFunc(h.Form)))
}

// =============================================================================
// Submission
// =============================================================================

// Create handles POST /api/incident-reports.
func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	req, err := h.parseSubmission(w, r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.submitter.Submit(r.Context(), viewer, req)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if req.ReportID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, newSubmissionResponse(res))
}

// Resubmit handles PUT /api/incident-reports/{id}. The path id always wins
// over an id carried in the form.
func (h *IncidentHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	req, err := h.parseSubmission(w, r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	req.ReportID = r.PathValue("id")
	if req.Revision == 0 && req.Form != nil {
		req.Revision = req.Form.Revision
	}

	res, err := h.submitter.Submit(r.Context(), viewer, req)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(res))
}

// jsonSubmission is the application/json form of a submission, used by
// clients that send no attachments.
type jsonSubmission struct {
	Report      *form.IncidentForm `json:"report"`
	BodyMap     []bodymap.Event    `json:"bodyMap,omitempty"`
	CanvasImage string             `json:"canvasImage,omitempty"`
	Revision    int                `json:"revision,omitempty"`
}

func (h *IncidentHandler) parseSubmission(w http.ResponseWriter, r *http.Request) (service.SubmitRequest, error) {
	const op = "handler.parseSubmission"

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body jsonSubmission
		if err := decodeJSON(r, h.maxBody, &body); err != nil {
			return service.SubmitRequest{}, err
		}
		img, err := bodyMapImage(op, body.BodyMap, body.CanvasImage)
		if err != nil {
			return service.SubmitRequest{}, err
		}
		return service.SubmitRequest{Form: body.Report, BodyMap: img, Revision: body.Revision}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.SubmitRequest{}, domain.TooLarge(op, "request body too large")
		}
		return service.SubmitRequest{}, domain.Invalid(op, "expected a multipart form")
	}

	var req service.SubmitRequest
	if raw := r.FormValue(fieldReport); raw != "" {
		var f form.IncidentForm
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return req, domain.Invalid(op, "report must be a JSON form")
		}
		req.Form = &f
	}

	var events []bodymap.Event
	if raw := r.FormValue(fieldBodyMap); raw != "" {
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return req, domain.Invalid(op, "bodyMap must be a JSON event list")
		}
	}
	img, err := bodyMapImage(op, events, r.FormValue(fieldCanvasImage))
	if err != nil {
		return req, err
	}
	req.BodyMap = img

	if raw := r.FormValue(fieldRevision); raw != "" {
		rev, err := strconv.Atoi(raw)
		if err != nil || rev < 0 {
			return req, domain.Invalid(op, "revision must be a non-negative number")
		}
		req.Revision = rev
	}

	req.Attachments, err = readUploads(op, r.MultipartForm, fieldAttachments)
	if err != nil {
		return req, err
	}
	return req, nil
}

// bodyMapImage flattens a recorded event list onto the body diagram, or
// decodes an already flattened canvas image. Events take precedence. Nil
// means nothing was drawn.
func bodyMapImage(op string, events []bodymap.Event, canvas string) (*domain.BodyMapImage, error) {
	if len(events) > 0 {
		surface := bodymap.NewReferenceSurface()
		if err := surface.Replay(events); err != nil {
			return nil, domain.Invalid(op, "bodyMap: "+err.Error())
		}
		if !surface.Drawn() {
			return nil, nil
		}
		reference, err := bodymap.Reference()
		if err != nil {
			return nil, domain.Internal(err, op, "body diagram unavailable")
		}
		img, err := surface.Flatten(reference)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to flatten body map")
		}
		return img, nil
	}

	data, _, err := domain.DecodeDataURL(canvas)
	if err != nil {
		return nil, domain.Invalid(op, "canvasImage must be an image data URL")
	}
	if len(data) == 0 {
		return nil, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Invalid(op, "canvasImage could not be decoded")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > bodymap.MaxSide || cfg.Height > bodymap.MaxSide {
		return nil, domain.Invalid(op, fmt.Sprintf("canvasImage must be at most %dx%d pixels", bodymap.MaxSide, bodymap.MaxSide))
	}
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Invalid(op, "canvasImage could not be decoded")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, domain.Internal(err, op, "failed to encode body map")
	}
	b := decoded.Bounds()
	return &domain.BodyMapImage{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// readUploads reads every file posted under field. Size limits are left to
// the submission service.
func readUploads(op string, mf *multipart.Form, field string) ([]service.Upload, error) {
	if mf == nil {
		return nil, nil
	}
	headers := mf.File[field]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, domain.Invalid(op, "failed to read attachment "+fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, domain.Invalid(op, "failed to read attachment "+fh.Filename)
		}
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

// =============================================================================
// Listing
// =============================================================================

// List handles GET /api/incident-reports.
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rows, err := h.listing.List(r.Context(), viewer)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": rows})
}

// Show handles GET /api/incident-reports/{id}.
func (h *IncidentHandler) Show(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	report, err := h.listing.Get(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Form handles GET /api/incident-reports/{id}/form, the prefilled form used
// to edit and resubmit a stored report.
func (h *IncidentHandler) Form(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUserFromRequest(r)
	if viewer == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	f, err := h.listing.Open(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
