package dto

// TriggerIngestRequest is the optional body of POST /api/v1/ingest/:job_type.
type TriggerIngestRequest struct {
	Limit     int    `json:"limit"`
	Force     bool   `json:"force"`
	SessionID string `json:"session_id"`
	DelaySecs int    `json:"delay_seconds"`
	Priority  int    `json:"priority"`
}

// TriggerIngestResponse acknowledges an accepted ingestion job.
type TriggerIngestResponse struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Status  string `json:"status"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"max_attempts"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	RunAt        string `json:"run_at"`
	CreatedAt    string `json:"created_at"`
}
