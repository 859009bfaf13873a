package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mhrncir/parlsync/internal/ingest/status"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// processJob drives a single job: claim, execute, settle. Returning nil
// means the job's fate is recorded in the database and the message may be
// ACKed, including execution failures whose retry is already scheduled.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.queue.Claim(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return err
		}
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Job row missing, dropping message",
				slog.String("job_id", msg.JobID),
			)
			return err
		}
		// transient database error, let the broker redeliver
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	var params domain.JobParams
	if job.Payload != "" {
		if err := json.Unmarshal([]byte(job.Payload), &params); err != nil {
			w.logger.Error("Failed to parse job payload",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
			if _, failErr := w.queue.Fail(ctx, job, fmt.Errorf("invalid payload JSON: %w", err)); failErr != nil {
				w.logger.Error("Failed to mark job failed",
					slog.String("job_id", job.JobID),
					slog.String("error", failErr.Error()),
				)
			}
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}

	runner, ok := w.runners[job.JobType]
	if !ok {
		w.logger.Error("No runner registered for job type",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
		)
		if _, failErr := w.queue.Fail(ctx, job, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.JobType)); failErr != nil {
			w.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		return nil
	}

	if err := w.ledger.MarkRunning(ctx, job.JobType); err != nil {
		w.logger.Warn("Failed to mark job name running in status ledger",
			slog.String("job_name", job.JobType),
			slog.String("error", err.Error()),
		)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)
	defer close(heartbeatDone)

	progress := func(percent int) {
		if err := w.queue.Progress(jobCtx, job.JobID, percent); err != nil {
			w.logger.Warn("Failed to update job progress",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	result, runErr := runner.Run(jobCtx, params, progress)

	if runErr != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
			slog.String("error", runErr.Error()),
		)

		retried, failErr := w.queue.Fail(ctx, job, runErr)
		if failErr != nil {
			// fate not settled, redeliver so another worker can settle it
			return domain.NewRetryableError(fmt.Errorf("failed to settle job failure: %w", failErr))
		}

		if retried {
			// the ledger keeps showing running until the last attempt;
			// a scheduled retry is not a terminal outcome
			w.logger.Info("Job retry scheduled",
				slog.String("job_id", job.JobID),
				slog.Int("attempt", job.Attempts),
			)
			return nil
		}

		if err := w.ledger.MarkResult(ctx, job.JobType, status.StatusFailed, result.Processed, result.Failed, runErr); err != nil {
			w.logger.Warn("Failed to record run result in status ledger",
				slog.String("job_name", job.JobType),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	runStatus := status.DeriveStatus(result.Processed, result.Failed)
	if err := w.ledger.MarkResult(ctx, job.JobType, runStatus, result.Processed, result.Failed, nil); err != nil {
		w.logger.Warn("Failed to record run result in status ledger",
			slog.String("job_name", job.JobType),
			slog.String("error", err.Error()),
		)
	}

	if err := w.queue.Complete(ctx, job, result); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to mark job completed: %w", err))
	}

	w.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("run_status", runStatus),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
	)

	return nil
}

// sendJobHeartbeat periodically refreshes the job's liveness timestamp so
// the stalled-job sweep leaves it alone.
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	interval := w.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
