package ingest

import (
	"context"
	"log/slog"

	"github.com/mhrncir/parlsync/internal/ingest/validate"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// BillsRunner ingests the term's bill list.
type BillsRunner struct {
	client UpstreamAPI
	store  RecordStore
	gate   *validate.Gate
	logger *slog.Logger
	term   string
}

// NewBillsRunner creates a new bills runner
func NewBillsRunner(client UpstreamAPI, store RecordStore, logger *slog.Logger, term string) *BillsRunner {
	return &BillsRunner{
		client: client,
		store:  store,
		gate:   validate.NewGate(),
		logger: logger,
		term:   term,
	}
}

// Run executes one bills ingestion job.
func (r *BillsRunner) Run(ctx context.Context, params domain.JobParams, progress ProgressFunc) (domain.Result, error) {
	var res domain.Result

	bills, err := r.client.Bills(ctx, r.term)
	if err != nil {
		return res, domain.NewRetryableError(err)
	}

	if params.Limit > 0 && len(bills) > params.Limit {
		bills = bills[:params.Limit]
	}

	r.logger.Info("Processing bills",
		slog.String("term", r.term),
		slog.Int("bills", len(bills)),
	)

	for i, raw := range bills {
		if ctx.Err() != nil {
			return res, domain.NewRetryableError(ctx.Err())
		}

		rec, err := r.gate.Bill(raw)
		if err != nil {
			res.Failed++
			r.logger.Warn("Bill rejected by validation gate",
				slog.String("external_id", raw.ExternalID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := r.store.SaveBill(ctx, rec); err != nil {
			res.Failed++
			r.logger.Error("Failed to persist bill",
				slog.String("external_id", rec.ExternalID),
				slog.String("error", err.Error()),
			)
			continue
		}

		res.Processed++

		if progress != nil {
			progress((i + 1) * 100 / len(bills))
		}
	}

	return res, nil
}
