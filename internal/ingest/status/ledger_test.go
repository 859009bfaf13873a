package status

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		failed    int
		want      string
	}{
		{"all processed", 10, 0, StatusSuccess},
		{"nothing to do", 0, 0, StatusSuccess},
		{"mixed outcome", 9, 1, StatusPartial},
		{"everything failed", 0, 3, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.processed, tt.failed))
		})
	}
}

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := NewLedger(sqlx.NewDb(db, "sqlmock"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return ledger, mock
}

func TestMarkRunningUpsertsByJobName(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (job_name) DO UPDATE")).
		WithArgs("ingest_votes", StatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.MarkRunning(context.Background(), "ingest_votes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkResultPreservesLastSuccessfulRunOnPartial(t *testing.T) {
	ledger, mock := newMockLedger(t)

	// a non-success result must keep the stored timestamp: the upsert
	// falls back to system_status.last_successful_run whenever the new
	// status differs from the success constant passed as $3
	mock.ExpectExec(regexp.QuoteMeta("ELSE system_status.last_successful_run")).
		WithArgs("ingest_votes", StatusPartial, StatusSuccess, nil, 9, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.MarkResult(context.Background(), "ingest_votes", StatusPartial, 9, 1, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkResultPreservesLastSuccessfulRunOnFailed(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta("ELSE system_status.last_successful_run")).
		WithArgs("ingest_votes", StatusFailed, StatusSuccess, "upstream unreachable", 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	runErr := errors.New("upstream unreachable")
	require.NoError(t, ledger.MarkResult(context.Background(), "ingest_votes", StatusFailed, 0, 0, runErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkResultAdvancesLastSuccessfulRunOnSuccess(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta("WHEN EXCLUDED.last_run_status = $3 THEN NOW()")).
		WithArgs("compute_scores", StatusSuccess, StatusSuccess, nil, 150, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.MarkResult(context.Background(), "compute_scores", StatusSuccess, 150, 0, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListScansLedgerRows(t *testing.T) {
	ledger, mock := newMockLedger(t)

	lastRun := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM system_status")).
		WillReturnRows(sqlmock.NewRows([]string{
			"job_name", "last_run_status", "last_successful_run", "last_run_error",
			"records_processed", "records_failed", "updated_at",
		}).AddRow("ingest_votes", StatusPartial, lastRun, nil, 9, 1, lastRun))

	rows, err := ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ingest_votes", rows[0].JobName)
	assert.Equal(t, StatusPartial, rows[0].LastRunStatus)
	require.NotNil(t, rows[0].LastSuccessfulRun)
	assert.Equal(t, lastRun, *rows[0].LastSuccessfulRun)
}
