package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// Publisher delivers a message to the named logical queue.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Store is the durable side of the queue.
type Store interface {
	InsertJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string, result domain.Result) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	ScheduleRetry(ctx context.Context, jobID, errMsg string, runAt time.Time) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	UpdateHeartbeat(ctx context.Context, jobID string) error
	RequeueStalled(ctx context.Context, heartbeatCutoff time.Time) ([]domain.Job, error)
	DuePending(ctx context.Context, grace time.Duration) ([]domain.Job, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	TrimFailed(ctx context.Context, keep int) (int64, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)
}

// EnqueueOptions are the optional knobs accepted by Enqueue.
type EnqueueOptions struct {
	Delay    time.Duration
	Priority int
}

// JobStatus is the externally visible state of one job.
type JobStatus struct {
	JobID        string     `json:"job_id"`
	JobType      string     `json:"job_type"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAttempt  *time.Time `json:"last_attempt_at,omitempty"`
}

// Queue is the durable, at-least-once job queue: the jobs table holds the
// authoritative state, RabbitMQ carries delivery messages, and the
// per-type policy decides retries.
type Queue struct {
	store     Store
	publisher Publisher
	policies  Policies
	logger    *slog.Logger
	now       func() time.Time
	// schedule arms a delayed republish. Swappable so tests run without
	// real timers; the durable row plus the pending sweep backstop it.
	schedule func(d time.Duration, fn func())
}

// New creates a new Queue instance
func New(store Store, publisher Publisher, policies Policies, logger *slog.Logger) *Queue {
	return &Queue{
		store:     store,
		publisher: publisher,
		policies:  policies,
		logger:    logger,
		now:       time.Now,
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// Enqueue records a job and publishes its delivery message. The write to
// the backing store either succeeds or the error is returned to the
// caller; there is no buffering.
func (q *Queue) Enqueue(ctx context.Context, jobType string, params domain.JobParams, opts *EnqueueOptions) (string, error) {
	if !domain.IsKnownJobType(jobType) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownJobType, jobType)
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	policy := q.policies.For(jobType)

	var delay time.Duration
	var priority int
	if opts != nil {
		delay = opts.Delay
		priority = opts.Priority
	}

	job := &domain.Job{
		JobID:       uuid.New().String(),
		JobType:     jobType,
		Payload:     string(payload),
		Status:      domain.JobStatusPending,
		Priority:    priority,
		MaxAttempts: policy.MaxAttempts,
		RunAt:       q.now().Add(delay),
	}

	if err := q.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}

	if delay > 0 {
		q.schedule(delay, func() { q.publish(context.Background(), jobType, job.JobID) })
	} else {
		q.publish(ctx, jobType, job.JobID)
	}

	q.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("job_type", jobType),
		slog.Duration("delay", delay),
	)

	return job.JobID, nil
}

// publish sends the delivery message. A publish failure is logged, not
// returned: the durable row exists and the pending sweep will republish.
func (q *Queue) publish(ctx context.Context, jobType, jobID string) {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		q.logger.Error("Failed to marshal job message",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := q.publisher.Publish(ctx, jobType, body); err != nil {
		q.logger.Error("Failed to publish job message, pending sweep will retry",
			slog.String("job_id", jobID),
			slog.String("job_type", jobType),
			slog.String("error", err.Error()),
		)
	}
}

// GetStatus returns the current state of a job.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := q.store.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobStatus{
		JobID:        job.JobID,
		JobType:      job.JobType,
		Status:       job.Status,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		LastAttempt:  job.LastAttemptAt,
	}, nil
}

// Claim hands a delivered job to a worker.
func (q *Queue) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	return q.store.ClaimJob(ctx, jobID, workerID)
}

// Progress records a running job's progress.
func (q *Queue) Progress(ctx context.Context, jobID string, percent int) error {
	return q.store.UpdateProgress(ctx, jobID, percent)
}

// Heartbeat refreshes a running job's liveness timestamp.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	return q.store.UpdateHeartbeat(ctx, jobID)
}

// Complete records a successful run.
func (q *Queue) Complete(ctx context.Context, job *domain.Job, result domain.Result) error {
	return q.store.MarkCompleted(ctx, job.JobID, result)
}

// Fail handles a failed run: retryable failures with attempts left go
// back to PENDING with exponential backoff, everything else is terminal.
// Returns true when a retry was scheduled.
func (q *Queue) Fail(ctx context.Context, job *domain.Job, jobErr error) (bool, error) {
	retryable := domain.IsRetryable(jobErr)

	if retryable && job.Attempts < job.MaxAttempts {
		policy := q.policies.For(job.JobType)
		delay := policy.BackoffFor(job.Attempts)
		runAt := q.now().Add(delay)

		if err := q.store.ScheduleRetry(ctx, job.JobID, jobErr.Error(), runAt); err != nil {
			return false, fmt.Errorf("failed to schedule retry: %w", err)
		}

		jobType, jobID := job.JobType, job.JobID
		q.schedule(delay, func() { q.publish(context.Background(), jobType, jobID) })

		q.logger.Info("Job retry scheduled",
			slog.String("job_id", job.JobID),
			slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("backoff", delay),
		)

		return true, nil
	}

	errMsg := jobErr.Error()
	if retryable {
		errMsg = fmt.Sprintf("%v: %s", domain.ErrMaxAttemptsExceeded, errMsg)
	}

	if err := q.store.MarkFailed(ctx, job.JobID, errMsg); err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}

	q.logger.Warn("Job terminally failed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Int("attempts", job.Attempts),
		slog.Bool("retryable", retryable),
	)

	return false, nil
}

// SweepStalled requeues jobs abandoned by dead workers and republishes
// pending jobs whose delivery message went missing.
func (q *Queue) SweepStalled(ctx context.Context, stallTimeout time.Duration) error {
	stalled, err := q.store.RequeueStalled(ctx, q.now().Add(-stallTimeout))
	if err != nil {
		return err
	}

	for _, job := range stalled {
		q.logger.Warn("Requeueing stalled job",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
		)
		q.publish(ctx, job.JobType, job.JobID)
	}

	due, err := q.store.DuePending(ctx, stallTimeout)
	if err != nil {
		return err
	}

	for _, job := range due {
		q.publish(ctx, job.JobType, job.JobID)
	}

	return nil
}

// SweepRetention applies the retention policy: completed jobs are kept
// briefly for observability, failed jobs longer for postmortems.
func (q *Queue) SweepRetention(ctx context.Context, completedRetention time.Duration, keepFailed int) error {
	deleted, err := q.store.DeleteCompletedBefore(ctx, q.now().Add(-completedRetention))
	if err != nil {
		return err
	}

	trimmed, err := q.store.TrimFailed(ctx, keepFailed)
	if err != nil {
		return err
	}

	if deleted > 0 || trimmed > 0 {
		q.logger.Info("Job retention sweep",
			slog.Int64("completed_deleted", deleted),
			slog.Int64("failed_trimmed", trimmed),
		)
	}

	return nil
}

// List returns jobs matching the filter.
func (q *Queue) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	return q.store.ListJobs(ctx, filter)
}
