package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrncir/parlsync/internal/config"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType string, _ domain.JobParams, _ *queue.EnqueueOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, jobType)
	return "job-" + jobType, nil
}

func (f *fakeEnqueuer) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enqueued...)
}

type fakeSweeper struct {
	mu        sync.Mutex
	stalled   int
	retention int
}

func (f *fakeSweeper) SweepStalled(context.Context, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stalled++
	return nil
}

func (f *fakeSweeper) SweepRetention(context.Context, time.Duration, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retention++
	return nil
}

func (f *fakeSweeper) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stalled, f.retention
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresEachCadenceImmediately(t *testing.T) {
	enq := &fakeEnqueuer{}
	cfg := config.SchedulerConfig{
		VotesInterval:  time.Hour,
		BillsInterval:  time.Hour,
		ScoresInterval: time.Hour,
		SweepInterval:  time.Hour,
	}
	s := New(enq, &fakeSweeper{}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(enq.types()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{
		domain.JobTypeVotes,
		domain.JobTypeBills,
		domain.JobTypeScores,
	}, enq.types())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerRepeatsOnTicker(t *testing.T) {
	enq := &fakeEnqueuer{}
	cfg := config.SchedulerConfig{
		VotesInterval: 20 * time.Millisecond,
		SweepInterval: time.Hour,
	}
	s := New(enq, &fakeSweeper{}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		return len(enq.types()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerEnqueueFailureDoesNotStopCadence(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("broker down")}
	cfg := config.SchedulerConfig{
		VotesInterval: 20 * time.Millisecond,
		SweepInterval: time.Hour,
	}
	s := New(enq, &fakeSweeper{}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(100 * time.Millisecond)

	enq.mu.Lock()
	enq.err = nil
	enq.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(enq.types()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
}

func TestSchedulerRunsMaintenanceSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	cfg := config.SchedulerConfig{
		SweepInterval: 20 * time.Millisecond,
		StallTimeout:  5 * time.Minute,
	}
	s := New(&fakeEnqueuer{}, sweeper, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		stalled, retention := sweeper.counts()
		return stalled >= 2 && retention >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerZeroIntervalDisablesCadence(t *testing.T) {
	enq := &fakeEnqueuer{}
	cfg := config.SchedulerConfig{
		VotesInterval: time.Hour,
		SweepInterval: time.Hour,
	}
	s := New(enq, &fakeSweeper{}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		return len(enq.types()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{domain.JobTypeVotes}, enq.types())
}
