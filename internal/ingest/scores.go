package ingest

import (
	"context"
	"log/slog"

	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// ScoresRunner recomputes derived per-member participation aggregates from
// the ballots already in the store. It never talks to the upstream.
type ScoresRunner struct {
	store  RecordStore
	logger *slog.Logger
}

// NewScoresRunner creates a new scores runner
func NewScoresRunner(store RecordStore, logger *slog.Logger) *ScoresRunner {
	return &ScoresRunner{
		store:  store,
		logger: logger,
	}
}

// Run executes one scores recomputation job.
func (r *ScoresRunner) Run(ctx context.Context, params domain.JobParams, progress ProgressFunc) (domain.Result, error) {
	rows, err := r.store.RecomputeScores(ctx)
	if err != nil {
		// One aggregation statement; a failure here is infrastructure
		// trouble, never bad data.
		return domain.Result{}, domain.NewRetryableError(err)
	}

	r.logger.Info("Member scores recomputed",
		slog.Int64("members", rows),
	)

	if progress != nil {
		progress(100)
	}

	return domain.Result{Processed: int(rows)}, nil
}
