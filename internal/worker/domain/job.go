package domain

import "time"

// Job represents a job row from the database for worker processing
type Job struct {
	JobID         string     `db:"job_id"`
	JobType       string     `db:"job_type"`
	Payload       string     `db:"payload"`
	Status        string     `db:"status"`
	Priority      int        `db:"priority"`
	Attempts      int        `db:"attempts"`
	MaxAttempts   int        `db:"max_attempts"`
	Progress      int        `db:"progress"`
	WorkerID      string     `db:"worker_id"`
	ErrorMessage  string     `db:"error_message"`
	RunAt         time.Time  `db:"run_at"`
	CreatedAt     time.Time  `db:"created_at"`
	LastAttemptAt *time.Time `db:"last_attempt_at"`
}

// JobMessage represents a job message delivered over RabbitMQ. The row in
// the jobs table is authoritative; the message only carries the pointer.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}

// JobParams is the payload accepted by ingestion jobs.
type JobParams struct {
	// Limit caps how many sittings (or bills) a single run may process.
	Limit int `json:"limit,omitempty"`
	// Force re-fetches records even when they look current.
	Force bool `json:"force,omitempty"`
	// SessionID pins the run to one upstream session instead of the
	// automatically selected one.
	SessionID string `json:"session_id,omitempty"`
}

// Result is the outcome of one job run. Per-record failures are absorbed
// into Failed; only catastrophic errors surface as job errors.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}
