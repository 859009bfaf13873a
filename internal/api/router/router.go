package router

import (
	"github.com/gin-gonic/gin"

	"github.com/mhrncir/parlsync/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	ingestHandler := handler.NewIngestHandler(deps)

	// Health check endpoint
	r.GET("/health", ingestHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/ingest/:job_type - Trigger an ingestion job
		v1.POST("/ingest/:job_type", ingestHandler.TriggerIngest)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", ingestHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", ingestHandler.GetJob)
		}

		// GET /api/v1/system-status - Per-job-name health ledger
		v1.GET("/system-status", ingestHandler.SystemStatus)
	}

	return r
}
