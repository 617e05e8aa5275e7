package metrics

// Submission outcomes.
const (
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
	OutcomePersisted = "persisted"
	OutcomeNotified  = "notified"
	OutcomePartial   = "partial"
)

func SubmissionFinished(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// NotificationAttempt records one delivery attempt of the given kind.
func NotificationAttempt(kind string, delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func AttachmentUploaded(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	AttachmentUploadsTotal.WithLabelValues(status).Inc()
}

func ExportGenerated(kind, format string) {
	ExportsTotal.WithLabelValues(kind, format).Inc()
}
