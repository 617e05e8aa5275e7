// Package jobs contains the background job handlers run by the worker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/metrics"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/storage"
	"github.com/DukeRupert/safetyline/internal/store"
	"github.com/DukeRupert/safetyline/internal/worker"
)

// ReportReader loads a stored incident report. *store.IncidentReports
// implements it.
type ReportReader interface {
	Get(ctx context.Context, id string) (*domain.IncidentReport, error)
}

var _ ReportReader = (*store.IncidentReports)(nil)

// DeliverNotificationHandler retries one failed notification. It re-reads
// the report so the message reflects the latest stored revision.
type DeliverNotificationHandler struct {
	reports    ReportReader
	blobs      storage.Storage
	publicBase string
	notifier   service.Notifier
	logger     *slog.Logger
}

// NewDeliverNotificationHandler creates a new handler for redelivery jobs.
func NewDeliverNotificationHandler(
	reports ReportReader,
	blobs storage.Storage,
	publicBase string,
	notifier service.Notifier,
	logger *slog.Logger,
) *DeliverNotificationHandler {
	return &DeliverNotificationHandler{
		reports:    reports,
		blobs:      blobs,
		publicBase: publicBase,
		notifier:   notifier,
		logger:     logger,
	}
}

// Type returns the job type identifier.
func (h *DeliverNotificationHandler) Type() string {
	return worker.JobTypeDeliverNotification
}

// Handle sends the notification again and returns its outcome as the job
// result.
func (h *DeliverNotificationHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var p worker.DeliverNotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if strings.TrimSpace(p.To) == "" || p.ReportID == "" {
		return nil, worker.NewPermanentError(fmt.Errorf("payload needs a recipient and a report id"))
	}

	logger := h.logger.With("report_id", p.ReportID, "kind", p.Kind, "to", p.To)

	report, err := h.reports.Get(ctx, p.ReportID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, worker.NewPermanentError(fmt.Errorf("report %s no longer exists", p.ReportID))
		}
		return nil, fmt.Errorf("fetch report: %w", err)
	}

	image := service.LoadBodyMap(ctx, h.blobs, h.publicBase, report, logger)

	switch p.Kind {
	case domain.NotificationOperator:
		err = h.notifier.NotifyOperator(ctx, p.To, report, image)
	case domain.NotificationEmployee:
		err = h.notifier.NotifyEmployee(ctx, p.To, p.EmployeeName, report, image)
	default:
		return nil, worker.NewPermanentError(fmt.Errorf("unknown notification kind %q", p.Kind))
	}
	metrics.NotificationAttempt(string(p.Kind), err == nil)
	if err != nil {
		logger.Warn("notification redelivery failed", "error", err)
		return nil, fmt.Errorf("deliver %s notification: %w", p.Kind, err)
	}

	logger.Info("notification redelivered")
	return json.Marshal(domain.NotificationOutcome{Kind: p.Kind, Recipient: p.To, Delivered: true})
}
