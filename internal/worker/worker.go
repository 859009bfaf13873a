package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhrncir/parlsync/internal/ingest"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker/domain"
	"github.com/mhrncir/parlsync/shared/rabbitmq"
)

// JobQueue is the slice of the durable queue the worker needs.
type JobQueue interface {
	Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	Progress(ctx context.Context, jobID string, percent int) error
	Heartbeat(ctx context.Context, jobID string) error
	Complete(ctx context.Context, job *domain.Job, result domain.Result) error
	Fail(ctx context.Context, job *domain.Job, jobErr error) (bool, error)
}

// StatusLedger records per-job-name run outcomes.
type StatusLedger interface {
	MarkRunning(ctx context.Context, jobName string) error
	MarkResult(ctx context.Context, jobName, status string, processed, failed int, runErr error) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	Queue             JobQueue
	Ledger            StatusLedger
	Runners           map[string]ingest.Runner
	Policies          queue.Policies
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker consumes job messages, one durable queue per job type, and
// drives each job through claim, execute, and settle.
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	queue             JobQueue
	ledger            StatusLedger
	runners           map[string]ingest.Runner
	policies          queue.Policies
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	workerID          string
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		queue:             cfg.Queue,
		ledger:            cfg.Ledger,
		runners:           cfg.Runners,
		policies:          cfg.Policies,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		stopChan:          make(chan struct{}),
	}
}

// Start subscribes to every job type queue and spawns the worker pools.
// Blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	totalPrefetch := 0
	for _, jobType := range domain.JobTypes {
		totalPrefetch += w.policies.For(jobType).Concurrency
	}

	if err := w.rabbitClient.Qos(totalPrefetch); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	for _, jobType := range domain.JobTypes {
		concurrency := w.policies.For(jobType).Concurrency

		jobsChan, err := w.startConsumer(ctx, jobType)
		if err != nil {
			return fmt.Errorf("failed to start consumer for %s: %w", jobType, err)
		}

		w.spawnPool(ctx, jobType, concurrency, jobsChan)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
