package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/safetyline/internal/service"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeDeliverNotification = "deliver_notification"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// DeliverNotificationPayload is the payload of a notification redelivery job.
type DeliverNotificationPayload = service.Redelivery

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*EnqueueParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *EnqueueParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *EnqueueParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *EnqueueParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(ctx context.Context, store Store, jobType string, payload any, opts ...EnqueueOption) (Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := EnqueueParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: DefaultMaxAttempts,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := store.Enqueue(ctx, params)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// NotificationQueue schedules failed notifications as redelivery jobs.
type NotificationQueue struct {
	store Store
	opts  []EnqueueOption
}

var _ service.RedeliveryQueue = (*NotificationQueue)(nil)

// NewNotificationQueue creates a queue for the schedule in cfg. A job's
// first run is one RetryBase after the failed send; opts override that.
func NewNotificationQueue(store Store, cfg Config, opts ...EnqueueOption) *NotificationQueue {
	defaults := []EnqueueOption{
		WithPriority(PriorityHigh),
		WithMaxAttempts(cfg.MaxAttempts),
		WithDelay(cfg.RetryBase),
	}
	return &NotificationQueue{
		store: store,
		opts:  append(defaults, opts...),
	}
}

// EnqueueNotification enqueues one redelivery.
func (q *NotificationQueue) EnqueueNotification(ctx context.Context, n service.Redelivery) error {
	_, err := EnqueueJob(ctx, q.store, JobTypeDeliverNotification, DeliverNotificationPayload(n), q.opts...)
	return err
}
