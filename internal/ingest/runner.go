package ingest

import (
	"context"

	"github.com/mhrncir/parlsync/internal/ingest/persist"
	"github.com/mhrncir/parlsync/internal/ingest/upstream"
	"github.com/mhrncir/parlsync/internal/ingest/validate"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// UpstreamAPI is the slice of the external data client the runners need.
type UpstreamAPI interface {
	Sessions(ctx context.Context, term string) ([]upstream.Session, error)
	Sittings(ctx context.Context, sessionID string) ([]upstream.Sitting, error)
	Agenda(ctx context.Context, sittingID string) ([]upstream.AgendaItem, error)
	VoteDetail(ctx context.Context, voteID string) (*upstream.VoteDetail, error)
	Bills(ctx context.Context, term string) ([]upstream.Bill, error)
}

// RecordStore is the slice of the persistence layer the runners need.
type RecordStore interface {
	SaveVoteRecord(ctx context.Context, rec *validate.VoteRecord, members []persist.MemberVoteRow) error
	SaveBill(ctx context.Context, rec *validate.BillRecord) error
	RecomputeScores(ctx context.Context) (int64, error)
}

// ProgressFunc reports job progress as a percentage. Implementations must
// tolerate being called from the runner's goroutine at any point.
type ProgressFunc func(percent int)

// Runner executes one ingestion job. Per-record failures are absorbed into
// the result; only catastrophic errors (upstream unreachable before any
// work, storage connection gone) are returned.
type Runner interface {
	Run(ctx context.Context, params domain.JobParams, progress ProgressFunc) (domain.Result, error)
}
