package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mhrncir/parlsync/internal/config"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// Enqueuer submits jobs to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, params domain.JobParams, opts *queue.EnqueueOptions) (string, error)
}

// Sweeper runs the queue maintenance passes.
type Sweeper interface {
	SweepStalled(ctx context.Context, stallTimeout time.Duration) error
	SweepRetention(ctx context.Context, completedRetention time.Duration, keepFailed int) error
}

// Scheduler fires ingestion jobs on fixed cadences and runs the queue
// maintenance sweeps. Enqueue failures are logged and the tick skipped;
// the next tick tries again.
type Scheduler struct {
	enqueuer Enqueuer
	sweeper  Sweeper
	cfg      config.SchedulerConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a new Scheduler instance
func New(enqueuer Enqueuer, sweeper Sweeper, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the cadence and maintenance loops. Blocks until ctx is
// canceled, then waits for the loops to drain.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		slog.Duration("votes_interval", s.cfg.VotesInterval),
		slog.Duration("bills_interval", s.cfg.BillsInterval),
		slog.Duration("scores_interval", s.cfg.ScoresInterval),
	)

	s.spawnCadence(ctx, domain.JobTypeVotes, s.cfg.VotesInterval)
	s.spawnCadence(ctx, domain.JobTypeBills, s.cfg.BillsInterval)
	s.spawnCadence(ctx, domain.JobTypeScores, s.cfg.ScoresInterval)

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) spawnCadence(ctx context.Context, jobType string, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("Cadence disabled",
			slog.String("job_type", jobType),
		)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// first run fires immediately, the ticker takes over after
		s.fire(ctx, jobType)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fire(ctx, jobType)
			}
		}
	}()
}

// fire enqueues one scheduled run. Scheduled runs carry empty params:
// limits and session pins are operator tools, not cadence defaults.
func (s *Scheduler) fire(ctx context.Context, jobType string) {
	jobID, err := s.enqueuer.Enqueue(ctx, jobType, domain.JobParams{}, nil)
	if err != nil {
		s.logger.Error("Failed to enqueue scheduled job",
			slog.String("job_type", jobType),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Scheduled job enqueued",
		slog.String("job_type", jobType),
		slog.String("job_id", jobID),
	)
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweeper.SweepStalled(ctx, s.cfg.StallTimeout); err != nil {
				s.logger.Error("Stalled job sweep failed",
					slog.String("error", err.Error()),
				)
			}
			if err := s.sweeper.SweepRetention(ctx, s.cfg.CompletedRetention, s.cfg.FailedKeep); err != nil {
				s.logger.Error("Retention sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
