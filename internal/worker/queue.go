package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Job statuses stored in the jobs.status column.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)


// Job is one row of the jobs table.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	Result       pqtype.NullRawMessage
	CreatedAt    time.Time
}

// EnqueueParams describes a job to insert.
type EnqueueParams struct {
	JobType     string
	Payload     json.RawMessage
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

// Store is the persistence the worker needs. *Queue implements it against
// Postgres.
type Store interface {
	Enqueue(ctx context.Context, p EnqueueParams) (Job, error)
	// Claim moves the next due job of one of jobTypes to running and
	// returns it. It returns sql.ErrNoRows when nothing is due.
	Claim(ctx context.Context, jobTypes []string) (Job, error)
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
}

// Queue is the Postgres-backed job store.
type Queue struct {
	db        *sql.DB
	retryBase time.Duration
}

var _ Store = (*Queue)(nil)

// NewQueue wraps an open handle. The jobs table comes from the migrations.
// Failed jobs wait retryBase before their first retry.
func NewQueue(db *sql.DB, retryBase time.Duration) *Queue {
	if retryBase <= 0 {
		retryBase = DefaultRetryBase
	}
	return &Queue{db: db, retryBase: retryBase}
}

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts,
	scheduled_at, started_at, completed_at, error_message, result, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payload []byte
	err := row.Scan(
		&j.ID, &j.JobType, &payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.Result, &j.CreatedAt,
	)
	j.Payload = payload
	return j, err
}

func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, job_type, payload, priority, max_attempts, scheduled_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		RETURNING `+jobColumns,
		uuid.New(), p.JobType, []byte(p.Payload), p.Priority, p.MaxAttempts, p.ScheduledAt,
	)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (q *Queue) Claim(ctx context.Context, jobTypes []string) (Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending'
		  AND scheduled_at <= NOW()
		  AND job_type = ANY($1)
		ORDER BY priority DESC, scheduled_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		pq.Array(jobTypes),
	)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = NOW(), attempts = attempts + 1
		WHERE id = $1`, job.ID); err != nil {
		return Job{}, fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = StatusRunning
	job.Attempts++
	return job, nil
}

func (q *Queue) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	res := pqtype.NullRawMessage{RawMessage: result, Valid: len(result) > 0}
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = NOW(), error_message = NULL, result = $2
		WHERE id = $1`, id, res)
	if err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	return nil
}

// Fail records a failed attempt. The job is rescheduled with exponential
// backoff until it runs out of attempts or permanent is set.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			error_message = $2,
			status = CASE WHEN $3 OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			completed_at = CASE WHEN $3 OR attempts >= max_attempts THEN NOW() ELSE NULL END,
			scheduled_at = CASE WHEN $3 OR attempts >= max_attempts THEN scheduled_at
				ELSE NOW() + make_interval(secs => $4 * power(2, attempts - 1)) END
		WHERE id = $1`, id, message, permanent, q.retryBase.Seconds())
	if err != nil {
		return fmt.Errorf("update job failed: %w", err)
	}
	return nil
}

// RecoverStale resets running jobs started more than threshold ago back to
// pending. Those belong to workers that died mid-job.
func (q *Queue) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', started_at = NULL
		WHERE status = 'running'
		  AND started_at < NOW() - make_interval(secs => $1)`, threshold.Seconds())
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns one job by id.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	job, err := scanJob(q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, err)
	}
	return job, err
}

// retryDelay is the wait before attempt n+1 after attempt n failed.
func retryDelay(base time.Duration, attempt int32) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
