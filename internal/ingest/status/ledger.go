package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Run status values recorded in the ledger.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Row is one ledger entry: the health record for a job name.
type Row struct {
	JobName           string     `db:"job_name" json:"job_name"`
	LastRunStatus     string     `db:"last_run_status" json:"last_run_status"`
	LastSuccessfulRun *time.Time `db:"last_successful_run" json:"last_successful_run,omitempty"`
	LastRunError      *string    `db:"last_run_error" json:"last_run_error,omitempty"`
	RecordsProcessed  int        `db:"records_processed" json:"records_processed"`
	RecordsFailed     int        `db:"records_failed" json:"records_failed"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Ledger is the per-job-name health record consumed by monitoring. One
// row per job name, upserted at run start and completion, never deleted.
type Ledger struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewLedger creates a new Ledger instance
func NewLedger(db *sqlx.DB, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
	}
}

// MarkRunning records that a run of the named job has started.
func (l *Ledger) MarkRunning(ctx context.Context, jobName string) error {
	const query = `
		INSERT INTO system_status (job_name, last_run_status, records_processed, records_failed, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (job_name) DO UPDATE SET
			last_run_status = EXCLUDED.last_run_status,
			updated_at = NOW()
	`

	if _, err := l.db.ExecContext(ctx, query, jobName, StatusRunning); err != nil {
		return fmt.Errorf("failed to mark %s running: %w", jobName, err)
	}

	return nil
}

// MarkResult records the outcome of a run. last_successful_run advances
// only on success, so staleness stays visible through partial and failed
// runs.
func (l *Ledger) MarkResult(ctx context.Context, jobName, status string, processed, failed int, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	const query = `
		INSERT INTO system_status (
			job_name, last_run_status, last_successful_run, last_run_error,
			records_processed, records_failed, updated_at
		) VALUES (
			$1, $2,
			CASE WHEN $2 = $3 THEN NOW() ELSE NULL END,
			$4, $5, $6, NOW()
		)
		ON CONFLICT (job_name) DO UPDATE SET
			last_run_status = EXCLUDED.last_run_status,
			last_successful_run = CASE
				WHEN EXCLUDED.last_run_status = $3 THEN NOW()
				ELSE system_status.last_successful_run
			END,
			last_run_error = EXCLUDED.last_run_error,
			records_processed = EXCLUDED.records_processed,
			records_failed = EXCLUDED.records_failed,
			updated_at = NOW()
	`

	if _, err := l.db.ExecContext(ctx, query, jobName, status, StatusSuccess, errMsg, processed, failed); err != nil {
		return fmt.Errorf("failed to mark %s result: %w", jobName, err)
	}

	l.logger.Info("System status updated",
		slog.String("job_name", jobName),
		slog.String("status", status),
		slog.Int("processed", processed),
		slog.Int("failed", failed),
	)

	return nil
}

// List returns every ledger row.
func (l *Ledger) List(ctx context.Context) ([]Row, error) {
	var rows []Row
	const query = `
		SELECT job_name, last_run_status, last_successful_run, last_run_error,
		       records_processed, records_failed, updated_at
		FROM system_status
		ORDER BY job_name
	`

	if err := l.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list system status: %w", err)
	}

	return rows, nil
}

// DeriveStatus maps a run's counts to its ledger status.
func DeriveStatus(processed, failed int) string {
	switch {
	case failed == 0:
		return StatusSuccess
	case processed > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
