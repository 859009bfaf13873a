package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhrncir/parlsync/internal/api/dto"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// TriggerIngest handles POST /api/v1/ingest/:job_type
// Enqueues an ingestion job and returns its id.
func (h *IngestHandler) TriggerIngest(c *gin.Context) {
	jobType := c.Param("job_type")
	if !domain.IsKnownJobType(jobType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown job type",
		})
		return
	}

	// body is optional, an empty body means default params
	var req dto.TriggerIngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if req.Limit < 0 || req.DelaySecs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit and delay_seconds must be non-negative",
		})
		return
	}

	params := domain.JobParams{
		Limit:     req.Limit,
		Force:     req.Force,
		SessionID: req.SessionID,
	}

	var opts *queue.EnqueueOptions
	if req.DelaySecs > 0 || req.Priority != 0 {
		opts = &queue.EnqueueOptions{
			Delay:    time.Duration(req.DelaySecs) * time.Second,
			Priority: req.Priority,
		}
	}

	jobID, err := h.jobs.Enqueue(c.Request.Context(), jobType, params, opts)
	if err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_type", jobType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.TriggerIngestResponse{
		JobID:   jobID,
		JobType: jobType,
		Status:  domain.JobStatusPending,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *IngestHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *IngestHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := queue.JobFilter{
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = dto.JobDTO{
			JobID:        job.JobID,
			JobType:      job.JobType,
			Status:       job.Status,
			Attempts:     job.Attempts,
			MaxAttempts:  job.MaxAttempts,
			Progress:     job.Progress,
			ErrorMessage: job.ErrorMessage,
			RunAt:        job.RunAt.Format(time.RFC3339),
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&queue.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// SystemStatus handles GET /api/v1/system-status
// Returns the per-job-name health ledger
func (h *IngestHandler) SystemStatus(c *gin.Context) {
	rows, err := h.status.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read system status", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read system status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs": rows,
	})
}

// Health handles GET /health
func (h *IngestHandler) Health(c *gin.Context) {
	healthy := true
	checks := gin.H{}

	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		healthy = false
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if h.broker() {
		checks["rabbitmq"] = "ok"
	} else {
		healthy = false
		checks["rabbitmq"] = "disconnected"
	}

	code := http.StatusOK
	statusText := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		statusText = "unhealthy"
	}

	c.JSON(code, gin.H{
		"status": statusText,
		"checks": checks,
	})
}
