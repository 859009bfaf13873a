package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrncir/parlsync/internal/ingest"
	"github.com/mhrncir/parlsync/internal/ingest/status"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

type fakeQueue struct {
	job      *domain.Job
	claimErr error

	completed  []domain.Result
	failedWith []error
	retried    bool
	failErr    error

	progressValues []int
}

func (f *fakeQueue) Claim(_ context.Context, jobID, workerID string) (*domain.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.job.WorkerID = workerID
	f.job.Attempts++
	cp := *f.job
	return &cp, nil
}

func (f *fakeQueue) Progress(_ context.Context, _ string, percent int) error {
	f.progressValues = append(f.progressValues, percent)
	return nil
}

func (f *fakeQueue) Heartbeat(context.Context, string) error { return nil }

func (f *fakeQueue) Complete(_ context.Context, _ *domain.Job, result domain.Result) error {
	f.completed = append(f.completed, result)
	return nil
}

func (f *fakeQueue) Fail(_ context.Context, _ *domain.Job, jobErr error) (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	f.failedWith = append(f.failedWith, jobErr)
	return f.retried, nil
}

type ledgerCall struct {
	jobName   string
	status    string
	processed int
	failed    int
}

type fakeLedger struct {
	running []string
	results []ledgerCall
}

func (f *fakeLedger) MarkRunning(_ context.Context, jobName string) error {
	f.running = append(f.running, jobName)
	return nil
}

func (f *fakeLedger) MarkResult(_ context.Context, jobName, st string, processed, failed int, _ error) error {
	f.results = append(f.results, ledgerCall{jobName: jobName, status: st, processed: processed, failed: failed})
	return nil
}

type fakeRunner struct {
	result domain.Result
	err    error
	params domain.JobParams
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, params domain.JobParams, progress ingest.ProgressFunc) (domain.Result, error) {
	f.calls++
	f.params = params
	if progress != nil {
		progress(50)
	}
	return f.result, f.err
}

func newTestWorker(q *fakeQueue, l *fakeLedger, runners map[string]ingest.Runner) *Worker {
	return &Worker{
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:             q,
		ledger:            l,
		runners:           runners,
		jobTimeout:        time.Minute,
		heartbeatInterval: time.Minute,
		workerID:          "worker-test",
		stopChan:          make(chan struct{}),
	}
}

func pendingJob(jobType, payload string) *domain.Job {
	return &domain.Job{
		JobID:       "7f8a2c14-0000-0000-0000-000000000001",
		JobType:     jobType,
		Payload:     payload,
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
	}
}

func TestProcessJobSuccess(t *testing.T) {
	q := &fakeQueue{job: pendingJob(domain.JobTypeVotes, `{"limit":3}`)}
	l := &fakeLedger{}
	r := &fakeRunner{result: domain.Result{Processed: 12}}
	w := newTestWorker(q, l, map[string]ingest.Runner{domain.JobTypeVotes: r})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID})
	require.NoError(t, err)

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 3, r.params.Limit)
	assert.Equal(t, []int{50}, q.progressValues)

	require.Len(t, q.completed, 1)
	assert.Equal(t, 12, q.completed[0].Processed)

	assert.Equal(t, []string{domain.JobTypeVotes}, l.running)
	require.Len(t, l.results, 1)
	assert.Equal(t, status.StatusSuccess, l.results[0].status)
	assert.Equal(t, 12, l.results[0].processed)
}

func TestProcessJobPartialResult(t *testing.T) {
	q := &fakeQueue{job: pendingJob(domain.JobTypeVotes, "")}
	l := &fakeLedger{}
	r := &fakeRunner{result: domain.Result{Processed: 8, Failed: 2}}
	w := newTestWorker(q, l, map[string]ingest.Runner{domain.JobTypeVotes: r})

	require.NoError(t, w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID}))

	// per-record failures do not fail the job
	require.Len(t, q.completed, 1)
	require.Len(t, l.results, 1)
	assert.Equal(t, status.StatusPartial, l.results[0].status)
	assert.Equal(t, 2, l.results[0].failed)
}

func TestProcessJobRetryScheduledNotLedgeredFailed(t *testing.T) {
	q := &fakeQueue{job: pendingJob(domain.JobTypeVotes, ""), retried: true}
	l := &fakeLedger{}
	runErr := domain.NewRetryableError(errors.New("upstream unreachable"))
	r := &fakeRunner{err: runErr}
	w := newTestWorker(q, l, map[string]ingest.Runner{domain.JobTypeVotes: r})

	// nil return: the retry is scheduled in the store, message gets ACKed
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID})
	require.NoError(t, err)

	require.Len(t, q.failedWith, 1)
	assert.True(t, domain.IsRetryable(q.failedWith[0]))
	assert.Empty(t, q.completed)

	// the job is still in flight: the ledger keeps the running entry and
	// gets no failed result during the backoff window
	assert.Equal(t, []string{domain.JobTypeVotes}, l.running)
	assert.Empty(t, l.results)
}

func TestProcessJobTerminalFailureLedgeredFailed(t *testing.T) {
	q := &fakeQueue{job: pendingJob(domain.JobTypeVotes, ""), retried: false}
	l := &fakeLedger{}
	runErr := domain.NewRetryableError(errors.New("still unreachable"))
	r := &fakeRunner{err: runErr}
	w := newTestWorker(q, l, map[string]ingest.Runner{domain.JobTypeVotes: r})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID})
	require.NoError(t, err)

	require.Len(t, q.failedWith, 1)

	require.Len(t, l.results, 1)
	assert.Equal(t, status.StatusFailed, l.results[0].status)
}

func TestProcessJobAlreadyClaimed(t *testing.T) {
	q := &fakeQueue{claimErr: domain.ErrJobAlreadyClaimed}
	l := &fakeLedger{}
	w := newTestWorker(q, l, map[string]ingest.Runner{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: "7f8a2c14-0000-0000-0000-000000000002"})
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.False(t, w.shouldRequeueMessage(err))
}

func TestProcessJobClaimTransientError(t *testing.T) {
	q := &fakeQueue{claimErr: errors.New("connection reset")}
	w := newTestWorker(q, &fakeLedger{}, map[string]ingest.Runner{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: "7f8a2c14-0000-0000-0000-000000000003"})
	require.Error(t, err)
	assert.True(t, w.shouldRequeueMessage(err))
}

func TestProcessJobInvalidPayload(t *testing.T) {
	q := &fakeQueue{job: pendingJob(domain.JobTypeBills, `{"limit":`)}
	l := &fakeLedger{}
	w := newTestWorker(q, l, map[string]ingest.Runner{domain.JobTypeBills: &fakeRunner{}})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.False(t, w.shouldRequeueMessage(err))

	// terminal failure recorded against the job row
	require.Len(t, q.failedWith, 1)
	assert.False(t, domain.IsRetryable(q.failedWith[0]))
}

func TestProcessJobNoRunnerRegistered(t *testing.T) {
	q := &fakeQueue{job: pendingJob("ingest_minutes", "")}
	l := &fakeLedger{}
	w := newTestWorker(q, l, map[string]ingest.Runner{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: q.job.JobID})
	require.NoError(t, err)

	require.Len(t, q.failedWith, 1)
	assert.ErrorIs(t, q.failedWith[0], domain.ErrUnknownJobType)
	assert.Empty(t, l.running)
}

func TestShouldRequeueMessage(t *testing.T) {
	w := newTestWorker(&fakeQueue{}, &fakeLedger{}, nil)

	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{"already claimed", domain.ErrJobAlreadyClaimed, false},
		{"job not found", domain.ErrJobNotFound, false},
		{"invalid payload", domain.ErrInvalidPayload, false},
		{"retryable", domain.NewRetryableError(errors.New("db down")), true},
		{"unknown", errors.New("mystery"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, w.shouldRequeueMessage(tt.err))
		})
	}
}
