package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/metrics"
	"github.com/DukeRupert/safetyline/internal/storage"
	"github.com/DukeRupert/safetyline/internal/store"
)

// =============================================================================
// Collaborators
// =============================================================================

// Notifier delivers the two notification kinds for a stored report.
type Notifier interface {
	NotifyOperator(ctx context.Context, to string, report *domain.IncidentReport, image *domain.BodyMapImage) error
	NotifyEmployee(ctx context.Context, to, employeeName string, report *domain.IncidentReport, image *domain.BodyMapImage) error
}

// RedeliveryQueue schedules another attempt for a failed notification.
type RedeliveryQueue interface {
	EnqueueNotification(ctx context.Context, n Redelivery) error
}

// Redelivery identifies one notification to attempt again.
type Redelivery struct {
	Kind         domain.NotificationKind `json:"kind"`
	To           string                  `json:"to"`
	EmployeeName string                  `json:"employee_name,omitempty"`
	ReportID     string                  `json:"report_id"`
}

// Upload is one attachment file as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SubmitRequest carries everything one submission needs. ReportID and
// Revision are set when an existing report is resubmitted.
type SubmitRequest struct {
	Form        *form.IncidentForm
	BodyMap     *domain.BodyMapImage
	Attachments []Upload
	ReportID    string
	Revision    int
}

// =============================================================================
// Submission service
// =============================================================================

// SubmissionService validates, stores, and announces incident reports.
type SubmissionService struct {
	reports    *store.IncidentReports
	blobs      storage.Storage
	thumbs     ThumbnailProcessor
	notifier   Notifier
	queue      RedeliveryQueue
	publicBase string
	maxBytes   int64
	now        func() time.Time
	logger     *slog.Logger
}

// SubmissionOption configures optional collaborators.
type SubmissionOption func(*SubmissionService)

// WithRedeliveryQueue enqueues failed notifications for another attempt.
func WithRedeliveryQueue(q RedeliveryQueue) SubmissionOption {
	return func(s *SubmissionService) { s.queue = q }
}

// WithPublicBase sets the blob store's public URL prefix so stored image
// URLs can be mapped back to keys.
func WithPublicBase(base string) SubmissionOption {
	return func(s *SubmissionService) { s.publicBase = base }
}

// WithMaxAttachmentBytes bounds each uploaded file.
func WithMaxAttachmentBytes(n int64) SubmissionOption {
	return func(s *SubmissionService) { s.maxBytes = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SubmissionOption {
	return func(s *SubmissionService) { s.now = now }
}

func NewSubmissionService(
	reports *store.IncidentReports,
	blobs storage.Storage,
	thumbs ThumbnailProcessor,
	notifier Notifier,
	logger *slog.Logger,
	opts ...SubmissionOption,
) *SubmissionService {
	s := &SubmissionService{
		reports:  reports,
		blobs:    blobs,
		thumbs:   thumbs,
		notifier: notifier,
		maxBytes: 10 << 20,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// machine records the state trail of one submission.
type machine struct {
	state  domain.SubmissionState
	trail  []domain.SubmissionState
	logger *slog.Logger
}

func newMachine(logger *slog.Logger) *machine {
	return &machine{
		state:  domain.StateDraft,
		trail:  []domain.SubmissionState{domain.StateDraft},
		logger: logger,
	}
}

func (m *machine) advance(next domain.SubmissionState) {
	if !m.state.CanTransitionTo(next) {
		// A wiring bug, not a user error.
		panic(fmt.Sprintf("submission: illegal transition %s -> %s", m.state, next))
	}
	m.logger.Debug("submission state", "from", m.state, "to", next)
	m.state = next
	m.trail = append(m.trail, next)
}

// Submit runs one submission through validation, upload, persistence and
// notification. A returned error means nothing was persisted; notification
// failures are reported in the result instead.
func (s *SubmissionService) Submit(ctx context.Context, viewer *domain.User, req SubmitRequest) (*domain.SubmissionResult, error) {
	const op = "submission.submit"

	if req.ReportID == "" && req.Form != nil && req.Form.ReportID != "" {
		req.ReportID = req.Form.ReportID
		if req.Revision == 0 {
			req.Revision = req.Form.Revision
		}
	}

	logger := s.logger.With("viewer", viewer.Email)
	if req.ReportID != "" {
		logger = logger.With("report_id", req.ReportID)
	}
	m := newMachine(logger)

	// Validating
	m.advance(domain.StateValidating)
	if req.Form == nil {
		m.advance(domain.StateInvalid)
		metrics.SubmissionFinished(metrics.OutcomeInvalid)
		return nil, domain.Invalid(op, "report is required")
	}
	if err := form.Validate(req.Form); err != nil {
		m.advance(domain.StateInvalid)
		metrics.SubmissionFinished(metrics.OutcomeInvalid)
		return nil, err
	}
	if err := s.checkUploads(op, req.Attachments); err != nil {
		m.advance(domain.StateInvalid)
		metrics.SubmissionFinished(metrics.OutcomeInvalid)
		return nil, err
	}

	var existing *domain.IncidentReport
	reportID := uuid.NewString()
	if req.ReportID != "" {
		found, err := s.reports.Get(ctx, req.ReportID)
		if err != nil || !viewer.CanSeeCompany(found.CompanyName) {
			m.advance(domain.StateInvalid)
			metrics.SubmissionFinished(metrics.OutcomeInvalid)
			if err != nil && !store.IsNotFound(err) {
				return nil, domain.Internal(err, op, "failed to load report")
			}
			return nil, domain.NotFound(op, "incident report", req.ReportID)
		}
		existing = found
		reportID = found.ID
	}

	// UploadingAttachments
	m.advance(domain.StateUploadingAttachments)
	up, err := s.upload(ctx, reportID, req)
	if err != nil {
		m.advance(domain.StateFailed)
		metrics.SubmissionFinished(metrics.OutcomeFailed)
		logger.Error("attachment upload failed", "error", err)
		return nil, domain.Unavailable(err, op, "attachment upload failed")
	}

	// Persisting
	m.advance(domain.StatePersisting)
	report := s.assemble(viewer, req.Form, reportID, up)
	if err := s.persist(ctx, report, existing, req.Revision); err != nil {
		s.cleanup(ctx, up.keys)
		m.advance(domain.StateFailed)
		metrics.SubmissionFinished(metrics.OutcomeFailed)
		return nil, s.persistError(op, err)
	}
	if existing != nil && up.bodyMapURL != "" {
		s.deleteSuperseded(ctx, existing.BodyMapImageURL(), logger)
	}

	// Persisted: notification works on the stored document.
	m.advance(domain.StatePersisted)
	stored, err := s.reports.Get(ctx, report.ID)
	if err != nil {
		logger.Error("re-read of persisted report failed", "error", err)
		stored = report
	}
	logger.Info("incident report persisted", "report_id", stored.ID, "revision", stored.Revision)

	// Notifying
	m.advance(domain.StateNotifying)
	image := req.BodyMap
	if image == nil {
		image = s.loadBodyMap(ctx, stored, logger)
	}
	outcomes := s.notify(ctx, stored, image, logger)

	m.advance(domain.StateDone)
	result := &domain.SubmissionResult{Report: stored, States: m.trail, Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.Delivered {
			result.NotificationFailed = true
		}
	}
	switch {
	case len(outcomes) == 0:
		metrics.SubmissionFinished(metrics.OutcomePersisted)
	case result.NotificationFailed:
		metrics.SubmissionFinished(metrics.OutcomePartial)
	default:
		metrics.SubmissionFinished(metrics.OutcomeNotified)
	}
	return result, nil
}

func (s *SubmissionService) checkUploads(op string, uploads []Upload) error {
	for i, u := range uploads {
		contentType := storage.DetectContentType(u.ContentType, u.Filename, bytes.NewReader(u.Data))
		if !storage.IsAllowedAttachmentType(contentType) {
			return domain.NewValidationError(op, fmt.Sprintf("attachments[%d]", i),
				fmt.Sprintf("%s: only PDF, JPG and PNG files can be attached", u.Filename))
		}
		if s.maxBytes > 0 && int64(len(u.Data)) > s.maxBytes {
			return domain.TooLarge(op, fmt.Sprintf("%s exceeds the %d MB attachment limit", u.Filename, s.maxBytes>>20))
		}
	}
	return nil
}

// =============================================================================
// Uploads
// =============================================================================

type uploaded struct {
	mu          sync.Mutex
	keys        []string
	attachments []domain.Attachment
	bodyMapURL  string
}

func (u *uploaded) track(key string) {
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
}

// upload stores every attachment and the body-map image concurrently. On
// failure everything stored by this attempt is deleted again.
func (s *SubmissionService) upload(ctx context.Context, reportID string, req SubmitRequest) (*uploaded, error) {
	up := &uploaded{attachments: make([]domain.Attachment, len(req.Attachments))}
	if len(req.Attachments) == 0 && req.BodyMap == nil {
		return up, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, file := range req.Attachments {
		g.Go(func() error {
			att, err := s.uploadAttachment(gctx, reportID, file, up)
			metrics.AttachmentUploaded(err == nil)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Filename, err)
			}
			up.attachments[i] = att
			return nil
		})
	}
	if req.BodyMap != nil && len(req.BodyMap.PNG) > 0 {
		g.Go(func() error {
			key := storage.BodyMapKey(reportID)
			url, err := s.put(gctx, key, "image/png", req.BodyMap.PNG, up)
			if err != nil {
				return fmt.Errorf("body map: %w", err)
			}
			up.bodyMapURL = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.cleanup(ctx, up.keys)
		return nil, err
	}
	return up, nil
}

func (s *SubmissionService) uploadAttachment(ctx context.Context, reportID string, file Upload, up *uploaded) (domain.Attachment, error) {
	contentType := storage.DetectContentType(file.ContentType, file.Filename, bytes.NewReader(file.Data))
	name := filepath.Base(file.Filename)
	if name == "." || name == "/" || name == "" {
		name = "attachment" + storage.ExtensionForContentType(contentType)
	}

	key := storage.AttachmentKey(reportID, name)
	url, err := s.put(ctx, key, contentType, file.Data, up)
	if err != nil {
		return domain.Attachment{}, err
	}
	att := domain.Attachment{
		Name:        name,
		URL:         url,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(file.Data)),
	}

	if att.IsImage() && s.thumbs != nil {
		thumb, _, _, err := s.thumbs.GenerateThumbnail(bytes.NewReader(file.Data), ThumbnailMaxWidth, ThumbnailMaxHeight)
		if err != nil {
			s.logger.Warn("thumbnail generation failed", "key", key, "error", err)
			return att, nil
		}
		thumbKey := storage.ThumbnailKey(reportID, strings.TrimSuffix(name, filepath.Ext(name))+".jpg")
		thumbURL, err := s.put(ctx, thumbKey, "image/jpeg", thumb, up)
		if err != nil {
			return domain.Attachment{}, fmt.Errorf("thumbnail: %w", err)
		}
		att.ThumbnailURL = thumbURL
	}
	return att, nil
}

func (s *SubmissionService) put(ctx context.Context, key, contentType string, data []byte, up *uploaded) (string, error) {
	err := s.blobs.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     s.maxBytes,
		Public:      true,
	})
	if err != nil {
		return "", err
	}
	up.track(key)
	return s.blobs.URL(ctx, key, 0)
}

// cleanup deletes blobs best-effort; it runs even when ctx is cancelled.
func (s *SubmissionService) cleanup(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete orphaned blob", "key", key, "error", err)
		}
	}
}

// =============================================================================
// Persistence
// =============================================================================

func (s *SubmissionService) assemble(viewer *domain.User, f *form.IncidentForm, reportID string, up *uploaded) *domain.IncidentReport {
	report := f.ToReport(s.now(), viewer.Email)
	report.ID = reportID
	if report.CompanyName == "" {
		report.CompanyName = viewer.CompanyName
	}
	if report.CompanyID == "" {
		report.CompanyID = viewer.CompanyID
	}
	if up.bodyMapURL != "" && len(report.InjuryData.Events) > 0 {
		report.InjuryData.Events[0].Images = []string{up.bodyMapURL}
	}
	report.InjuryData.Attachments = append(report.InjuryData.Attachments, up.attachments...)
	if report.InjuryData.Attachments == nil {
		report.InjuryData.Attachments = []domain.Attachment{}
	}
	return report
}

func (s *SubmissionService) persist(ctx context.Context, report, existing *domain.IncidentReport, revision int) error {
	if existing == nil {
		return s.reports.Create(ctx, report)
	}
	report.SubmittedAt = existing.SubmittedAt
	if revision > 0 {
		report.Revision = revision + 1
	} else {
		report.Revision = existing.Revision + 1
	}
	return s.reports.Replace(ctx, report, revision)
}

func (s *SubmissionService) persistError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrRevisionMismatch):
		return domain.Conflict(op, "The report was changed by someone else. Reload it and try again.")
	case errors.Is(err, store.ErrNotFound):
		return domain.Errorf(domain.ENOTFOUND, op, "incident report not found")
	default:
		return domain.Internal(err, op, "failed to save report")
	}
}

func (s *SubmissionService) deleteSuperseded(ctx context.Context, oldURL string, logger *slog.Logger) {
	key, ok := storage.KeyFromURL(s.publicBase, oldURL)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		logger.Warn("failed to delete superseded body map", "key", key, "error", err)
	}
}

// loadBodyMap reads the stored body-map image of report, or returns nil.
func (s *SubmissionService) loadBodyMap(ctx context.Context, report *domain.IncidentReport, logger *slog.Logger) *domain.BodyMapImage {
	return LoadBodyMap(ctx, s.blobs, s.publicBase, report, logger)
}

// LoadBodyMap reads the stored body-map PNG of report from blobs. Any
// failure is logged and yields nil.
func LoadBodyMap(ctx context.Context, blobs storage.Storage, publicBase string, report *domain.IncidentReport, logger *slog.Logger) *domain.BodyMapImage {
	key, ok := storage.KeyFromURL(publicBase, report.BodyMapImageURL())
	if !ok {
		return nil
	}
	rc, _, err := blobs.Get(ctx, key)
	if err != nil {
		logger.Warn("failed to load body map", "key", key, "error", err)
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		logger.Warn("failed to read body map", "key", key, "error", err)
		return nil
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		logger.Warn("stored body map is not a PNG", "key", key, "error", err)
		return nil
	}
	return &domain.BodyMapImage{PNG: data, Width: cfg.Width, Height: cfg.Height}
}

// =============================================================================
// Notification
// =============================================================================

// notify sends one operator message per return-to address and one employee
// message per injured employee with an email. Each attempt is isolated.
func (s *SubmissionService) notify(ctx context.Context, report *domain.IncidentReport, image *domain.BodyMapImage, logger *slog.Logger) []domain.NotificationOutcome {
	if s.notifier == nil {
		return nil
	}

	var outcomes []domain.NotificationOutcome
	for _, to := range report.OperatorRecipients() {
		err := s.notifier.NotifyOperator(ctx, to, report, image)
		outcomes = append(outcomes, s.outcome(ctx, Redelivery{
			Kind: domain.NotificationOperator, To: to, ReportID: report.ID,
		}, err, logger))
	}
	for _, e := range report.EmployeeRecipients() {
		to := strings.TrimSpace(e.Email)
		err := s.notifier.NotifyEmployee(ctx, to, e.Name, report, image)
		outcomes = append(outcomes, s.outcome(ctx, Redelivery{
			Kind: domain.NotificationEmployee, To: to, EmployeeName: e.Name, ReportID: report.ID,
		}, err, logger))
	}
	return outcomes
}

func (s *SubmissionService) outcome(ctx context.Context, r Redelivery, err error, logger *slog.Logger) domain.NotificationOutcome {
	o := domain.NotificationOutcome{Kind: r.Kind, Recipient: r.To, Delivered: err == nil}
	metrics.NotificationAttempt(string(r.Kind), err == nil)
	if err == nil {
		return o
	}

	o.Error = err.Error()
	logger.Warn("notification failed", "kind", r.Kind, "to", r.To, "error", err)
	if s.queue != nil {
		if qerr := s.queue.EnqueueNotification(ctx, r); qerr != nil {
			logger.Warn("failed to enqueue notification redelivery", "kind", r.Kind, "to", r.To, "error", qerr)
		} else {
			o.Queued = true
		}
	}
	return o
}
