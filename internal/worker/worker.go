package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/safetyline/internal/metrics"
)

// Worker manages background job processing with concurrent workers.
type Worker struct {
	store    Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	// Synchronization
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(store Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// jobTypes lists the registered types. Only those are claimed, so a worker
// never takes a job it cannot run.
func (w *Worker) jobTypes() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Start begins processing jobs with the configured number of concurrent workers.
// It also recovers any stale jobs from previous worker crashes.
func (w *Worker) Start(ctx context.Context) {
	count, err := w.store.RecoverStale(ctx, w.config.StaleJobThreshold)
	if err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	} else if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency, "job_types", w.jobTypes())
}

// Stop signals all workers to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping worker")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// runWorker is the main loop for a worker goroutine.
// It continuously polls for jobs until stopCh is closed or ctx ends.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker loop started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("worker loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				logger.Error("failed to process job", "error", err)
			}
		}
	}
}

// processNextJob claims and executes a single job.
// Returns sql.ErrNoRows if no jobs are available.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := w.store.Claim(ctx, w.jobTypes())
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	logger.Info("processing job")
	metrics.JobStarted(job.JobType)
	started := time.Now()

	result, err := w.executeJob(ctx, job)
	if err != nil {
		w.markJobFailed(ctx, job, err, logger)
		return fmt.Errorf("execute job: %w", err)
	}

	metrics.JobCompleted(job.JobType, time.Since(started))
	logger.Info("job completed", "duration", time.Since(started))
	if err := w.store.Complete(ctx, job.ID, result); err != nil {
		logger.Error("failed to mark job as completed", "error", err)
		return err
	}
	return nil
}

// executeJob runs the appropriate handler for the job with a timeout context.
func (w *Worker) executeJob(ctx context.Context, job Job) ([]byte, error) {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return nil, NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed records the failure. A permanent error or an exhausted
// attempt budget ends the job; anything else is rescheduled with backoff.
func (w *Worker) markJobFailed(ctx context.Context, job Job, jobErr error, logger *slog.Logger) {
	permanent := IsPermanent(jobErr)
	metrics.JobFailed(job.JobType)

	switch {
	case permanent:
		logger.Warn("job failed with permanent error, will not retry", "error", jobErr)
	case job.Attempts >= job.MaxAttempts:
		logger.Error("job failed, no attempts left", "error", jobErr, "max_attempts", job.MaxAttempts)
	default:
		metrics.JobRetried(job.JobType)
		logger.Warn("job failed, will retry", "error", jobErr, "retry_in", retryDelay(w.config.RetryBase, job.Attempts))
	}

	if err := w.store.Fail(ctx, job.ID, jobErr.Error(), permanent); err != nil {
		logger.Error("failed to mark job as failed", "error", err)
	}
}
