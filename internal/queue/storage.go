package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// Storage handles all database operations on the jobs table. The table is
// the durable side of the queue; RabbitMQ messages only point into it.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// InsertJob creates a new job row.
func (s *Storage) InsertJob(ctx context.Context, job *domain.Job) error {
	const query = `
		INSERT INTO jobs (
			job_id, job_type, payload, status, priority,
			attempts, max_attempts, progress, run_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			0, $6, 0, $7, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.JobType,
		job.Payload,
		domain.JobStatusPending,
		job.Priority,
		job.MaxAttempts,
		job.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job row by its id.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	const query = `
		SELECT job_id, job_type, payload, status, priority, attempts,
		       max_attempts, progress, COALESCE(worker_id, '') AS worker_id,
		       COALESCE(error_message, '') AS error_message,
		       run_at, created_at, last_attempt_at
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimJob attempts to claim a job using optimistic locking: only a
// PENDING row can move to RUNNING, so a redelivered message for an
// already-running job is rejected instead of racing.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	const query = `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING job_id, job_type, payload, priority, attempts, max_attempts, progress, run_at, created_at
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending).Scan(
		&job.JobID,
		&job.JobType,
		&job.Payload,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Progress,
		&job.RunAt,
		&job.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusRunning
	job.WorkerID = workerID

	return &job, nil
}

// MarkCompleted records a terminal successful run with its result counts.
func (s *Storage) MarkCompleted(ctx context.Context, jobID string, result domain.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	const query = `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error_message = NULL,
		    progress = 100,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, resultJSON, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return nil
}

// MarkFailed records a terminal failure.
func (s *Storage) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	const query = `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errMsg, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// ScheduleRetry moves a job back to PENDING with its next run time.
func (s *Storage) ScheduleRetry(ctx context.Context, jobID, errMsg string, runAt time.Time) error {
	const query = `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    worker_id = NULL,
		    run_at = $3,
		    updated_at = NOW()
		WHERE job_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, errMsg, runAt, jobID); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	return nil
}

// UpdateProgress records job progress as a percentage.
func (s *Storage) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	const query = `
		UPDATE jobs
		SET progress = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	if _, err := s.db.ExecContext(ctx, query, progress, jobID, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp of a running job.
func (s *Storage) UpdateHeartbeat(ctx context.Context, jobID string) error {
	const query = `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be running)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// RequeueStalled resets RUNNING jobs whose worker stopped heartbeating
// back to PENDING and returns them for republishing. Idempotent
// persistence makes the redelivery safe.
func (s *Storage) RequeueStalled(ctx context.Context, heartbeatCutoff time.Time) ([]domain.Job, error) {
	const query = `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND last_heartbeat_at < $3
		RETURNING job_id, job_type, payload, priority, attempts, max_attempts, progress, run_at, created_at
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusPending, domain.JobStatusRunning, heartbeatCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stalled jobs: %w", err)
	}

	return jobs, nil
}

// DuePending returns PENDING jobs whose run_at passed longer than grace
// ago; their delivery message was presumably lost and needs republishing.
func (s *Storage) DuePending(ctx context.Context, grace time.Duration) ([]domain.Job, error) {
	const query = `
		SELECT job_id, job_type, payload, priority, attempts,
		       max_attempts, progress, run_at, created_at
		FROM jobs
		WHERE status = $1
		  AND run_at < NOW() - $2::interval
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusPending, grace.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list due pending jobs: %w", err)
	}

	return jobs, nil
}

// DeleteCompletedBefore removes completed jobs older than the cutoff.
func (s *Storage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM jobs
		WHERE status = $1 AND completed_at < $2
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// TrimFailed keeps only the most recent N failed jobs for postmortems.
func (s *Storage) TrimFailed(ctx context.Context, keep int) (int64, error) {
	const query = `
		DELETE FROM jobs
		WHERE status = $1
		  AND job_id NOT IN (
			SELECT job_id FROM jobs
			WHERE status = $1
			ORDER BY completed_at DESC
			LIMIT $2
		  )
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim failed jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// JobCursor is the pagination cursor for job listings.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobFilter narrows and paginates job listings.
type JobFilter struct {
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// ListJobs returns jobs matching the filter, newest first, one extra row
// beyond PageSize so the caller can detect more results.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT job_id, job_type, payload, status, priority, attempts,
		       max_attempts, progress, COALESCE(worker_id, '') AS worker_id,
		       COALESCE(error_message, '') AS error_message,
		       run_at, created_at, last_attempt_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
