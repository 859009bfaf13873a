package handler

import (
	"context"
	"log/slog"

	"github.com/mhrncir/parlsync/internal/ingest/status"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// JobService is the slice of the queue the API exposes.
type JobService interface {
	Enqueue(ctx context.Context, jobType string, params domain.JobParams, opts *queue.EnqueueOptions) (string, error)
	GetStatus(ctx context.Context, jobID string) (*queue.JobStatus, error)
	List(ctx context.Context, filter queue.JobFilter) ([]domain.Job, error)
}

// StatusSource reads the per-job-name health ledger.
type StatusSource interface {
	List(ctx context.Context) ([]status.Row, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Jobs   JobService
	Status StatusSource
	DB     HealthChecker
	Broker func() bool
}

// IngestHandler handles ingestion and job HTTP requests
type IngestHandler struct {
	logger *slog.Logger
	jobs   JobService
	status StatusSource
	db     HealthChecker
	broker func() bool
}

// NewIngestHandler creates a new IngestHandler instance
func NewIngestHandler(deps *Dependencies) *IngestHandler {
	return &IngestHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		status: deps.Status,
		db:     deps.DB,
		broker: deps.Broker,
	}
}
