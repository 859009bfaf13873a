package ingest

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/mhrncir/parlsync/internal/ingest/persist"
	"github.com/mhrncir/parlsync/internal/ingest/resolve"
	"github.com/mhrncir/parlsync/internal/ingest/upstream"
	"github.com/mhrncir/parlsync/internal/ingest/validate"
	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// VotesRunnerConfig holds votes runner configuration
type VotesRunnerConfig struct {
	Term         string
	SittingLimit int
	VoteDelay    time.Duration
}

// VotesRunner ingests roll-call votes: it walks the most recent sittings
// of the selected session, fetches each vote's detailed results, validates
// them and persists them idempotently.
type VotesRunner struct {
	client       UpstreamAPI
	store        RecordStore
	roster       resolve.RosterSource
	gate         *validate.Gate
	logger       *slog.Logger
	term         string
	sittingLimit int
	voteDelay    time.Duration
}

// NewVotesRunner creates a new votes runner
func NewVotesRunner(client UpstreamAPI, store RecordStore, roster resolve.RosterSource, logger *slog.Logger, cfg VotesRunnerConfig) *VotesRunner {
	return &VotesRunner{
		client:       client,
		store:        store,
		roster:       roster,
		gate:         validate.NewGate(),
		logger:       logger,
		term:         cfg.Term,
		sittingLimit: cfg.SittingLimit,
		voteDelay:    cfg.VoteDelay,
	}
}

// Run executes one votes ingestion job.
func (r *VotesRunner) Run(ctx context.Context, params domain.JobParams, progress ProgressFunc) (domain.Result, error) {
	var res domain.Result

	// Everything up to the sitting loop is a precondition: a failure here
	// means no work has started and the whole job should be retried.
	resolver, err := resolve.Load(ctx, r.roster)
	if err != nil {
		return res, domain.NewRetryableError(err)
	}

	r.logger.Info("Member roster loaded",
		slog.Int("members", resolver.Size()),
	)

	sessionID := params.SessionID
	if sessionID == "" {
		sessions, err := r.client.Sessions(ctx, r.term)
		if err != nil {
			return res, domain.NewRetryableError(err)
		}
		session, ok := selectSession(sessions)
		if !ok {
			r.logger.Warn("No sessions available for term",
				slog.String("term", r.term),
			)
			return res, nil
		}
		sessionID = session.ID
	}

	sittings, err := r.client.Sittings(ctx, sessionID)
	if err != nil {
		return res, domain.NewRetryableError(err)
	}

	sortSittingsNewestFirst(sittings)

	limit := r.sittingLimit
	if params.Limit > 0 {
		limit = params.Limit
	}
	if limit > 0 && len(sittings) > limit {
		sittings = sittings[:limit]
	}

	r.logger.Info("Processing sittings",
		slog.String("session_id", sessionID),
		slog.Int("sittings", len(sittings)),
	)

	for i, sitting := range sittings {
		if ctx.Err() != nil {
			return res, domain.NewRetryableError(ctx.Err())
		}

		if err := r.processSitting(ctx, sitting, resolver, &res); err != nil {
			// The sitting was unreachable; skip it and move on. The next
			// scheduled run will pick it up again.
			r.logger.Error("Skipping unreachable sitting",
				slog.String("sitting_id", sitting.ID),
				slog.String("error", err.Error()),
			)
		}

		if progress != nil {
			progress((i + 1) * 100 / len(sittings))
		}
	}

	return res, nil
}

// processSitting ingests every vote attached to one sitting's agenda.
// Returns an error only when the agenda itself cannot be fetched.
func (r *VotesRunner) processSitting(ctx context.Context, sitting upstream.Sitting, resolver *resolve.Resolver, res *domain.Result) error {
	agenda, err := r.client.Agenda(ctx, sitting.ID)
	if err != nil {
		return err
	}

	for _, item := range agenda {
		for _, voteID := range item.VoteIDs {
			r.ingestVote(ctx, voteID, resolver, res)
			r.pace(ctx)
		}
	}

	return nil
}

// ingestVote fetches, validates and persists a single vote. Every failure
// mode here is absorbed: counted, logged, and the caller moves on.
func (r *VotesRunner) ingestVote(ctx context.Context, voteID string, resolver *resolve.Resolver, res *domain.Result) {
	detail, err := r.client.VoteDetail(ctx, voteID)
	if err != nil {
		res.Failed++
		r.logger.Error("Failed to fetch vote",
			slog.String("vote_id", voteID),
			slog.String("error", err.Error()),
		)
		return
	}

	rec, err := r.gate.VoteRecord(detail)
	if err != nil {
		res.Failed++
		if validate.IsValidationError(err) {
			r.logger.Warn("Vote rejected by validation gate",
				slog.String("vote_id", voteID),
				slog.String("error", err.Error()),
			)
		} else {
			r.logger.Error("Failed to validate vote",
				slog.String("vote_id", voteID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	members := r.resolveMembers(rec, resolver)

	// Individual unknown members are skipped pairs, but a vote where not a
	// single ballot resolves would persist an empty child set; count it as
	// failed instead.
	if len(rec.Members) > 0 && len(members) == 0 {
		res.Failed++
		r.logger.Error("Vote has no resolvable members",
			slog.String("vote_id", voteID),
			slog.Int("ballots", len(rec.Members)),
		)
		return
	}

	if err := r.store.SaveVoteRecord(ctx, rec, members); err != nil {
		res.Failed++
		r.logger.Error("Failed to persist vote",
			slog.String("vote_id", voteID),
			slog.String("error", err.Error()),
		)
		return
	}

	res.Processed++
}

// resolveMembers maps each ballot's upstream member id to the internal
// primary key. A miss skips that single pair with a warning.
func (r *VotesRunner) resolveMembers(rec *validate.VoteRecord, resolver *resolve.Resolver) []persist.MemberVoteRow {
	rows := make([]persist.MemberVoteRow, 0, len(rec.Members))
	for _, m := range rec.Members {
		memberID, ok := resolver.Resolve(m.ExternalMemberID)
		if !ok {
			r.logger.Warn("Vote references unknown member, skipping pair",
				slog.String("vote_id", rec.ExternalID),
				slog.String("external_member_id", m.ExternalMemberID),
			)
			continue
		}
		rows = append(rows, persist.MemberVoteRow{
			MemberID:         memberID,
			ExternalMemberID: m.ExternalMemberID,
			Value:            m.Value,
		})
	}
	return rows
}

// pace sleeps the configured interval between per-vote upstream calls.
func (r *VotesRunner) pace(ctx context.Context) {
	if r.voteDelay <= 0 {
		return
	}
	select {
	case <-time.After(r.voteDelay):
	case <-ctx.Done():
	}
}

// selectSession picks the session to ingest: regular sessions win over
// extraordinary ones, ties break to the highest session id.
func selectSession(sessions []upstream.Session) (upstream.Session, bool) {
	if len(sessions) == 0 {
		return upstream.Session{}, false
	}

	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.Regular() != best.Regular() {
			if s.Regular() {
				best = s
			}
			continue
		}
		if sessionIDLess(best.ID, s.ID) {
			best = s
		}
	}

	return best, true
}

// sessionIDLess orders session ids numerically when possible.
func sessionIDLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// sortSittingsNewestFirst orders sittings by date descending, ids breaking
// ties.
func sortSittingsNewestFirst(sittings []upstream.Sitting) {
	sort.SliceStable(sittings, func(i, j int) bool {
		if sittings[i].Date != sittings[j].Date {
			return sittings[i].Date > sittings[j].Date
		}
		return sessionIDLess(sittings[j].ID, sittings[i].ID)
	})
}
