package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/mhrncir/parlsync/internal/ingest/validate"
)

// MemberVoteRow is one resolved ballot ready for storage.
type MemberVoteRow struct {
	MemberID         int64             `db:"member_id"`
	ExternalMemberID string            `db:"external_member_id"`
	Value            validate.VoteValue `db:"vote_value"`
}

// Store writes validated records into the relational store. Every write is
// idempotent: parents upsert by external id, child sets are replaced
// whole, and each logical unit gets its own transaction so one bad record
// never poisons its neighbors.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// SaveVoteRecord upserts one vote record and replaces its full child set
// within a single transaction. On conflict only the mutable tally,
// comment and timestamp fields are updated; identity fields never change.
func (s *Store) SaveVoteRecord(ctx context.Context, rec *validate.VoteRecord, members []MemberVoteRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO vote_records (
			external_id, sitting_id, session_id, question,
			votes_for, votes_against, votes_abstain, votes_total,
			comment, voted_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, NOW(), NOW()
		)
		ON CONFLICT (external_id) DO UPDATE SET
			votes_for = EXCLUDED.votes_for,
			votes_against = EXCLUDED.votes_against,
			votes_abstain = EXCLUDED.votes_abstain,
			votes_total = EXCLUDED.votes_total,
			comment = EXCLUDED.comment,
			voted_at = EXCLUDED.voted_at,
			updated_at = NOW()
		RETURNING id
	`

	var voteRecordID int64
	err = tx.QueryRowContext(ctx, upsert,
		rec.ExternalID,
		rec.SittingID,
		rec.SessionID,
		rec.Question,
		rec.For,
		rec.Against,
		rec.Abstain,
		rec.Total,
		rec.Comment,
		rec.VotedAt,
	).Scan(&voteRecordID)
	if err != nil {
		return fmt.Errorf("failed to upsert vote record %s: %w", rec.ExternalID, err)
	}

	// Replace-on-write: the child set always mirrors the latest fetch,
	// never a mix of old and new rows.
	if _, err := tx.ExecContext(ctx, `DELETE FROM member_votes WHERE vote_record_id = $1`, voteRecordID); err != nil {
		return fmt.Errorf("failed to clear member votes for %s: %w", rec.ExternalID, err)
	}

	const insertChild = `
		INSERT INTO member_votes (vote_record_id, member_id, external_member_id, vote_value)
		VALUES ($1, $2, $3, $4)
	`

	for _, m := range members {
		if _, err := tx.ExecContext(ctx, insertChild, voteRecordID, m.MemberID, m.ExternalMemberID, m.Value); err != nil {
			return fmt.Errorf("failed to insert member vote %s/%s: %w", rec.ExternalID, m.ExternalMemberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote record %s: %w", rec.ExternalID, err)
	}

	s.logger.Debug("Vote record persisted",
		slog.String("external_id", rec.ExternalID),
		slog.Int("member_votes", len(members)),
	)

	return nil
}

// SaveBill upserts one bill by external id.
func (s *Store) SaveBill(ctx context.Context, rec *validate.BillRecord) error {
	const upsert = `
		INSERT INTO bills (external_id, title, status, proposed_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '0001-01-01T00:00:00Z'::timestamptz), NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			proposed_at = EXCLUDED.proposed_at,
			updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, upsert, rec.ExternalID, rec.Title, rec.Status, rec.ProposedAt); err != nil {
		return fmt.Errorf("failed to upsert bill %s: %w", rec.ExternalID, err)
	}

	return nil
}

// RecomputeScores rebuilds per-member participation aggregates from the
// stored ballots. Returns the number of member rows written.
func (s *Store) RecomputeScores(ctx context.Context) (int64, error) {
	const aggregate = `
		INSERT INTO member_scores (member_id, votes_cast, votes_present, attendance_rate, computed_at)
		SELECT
			mv.member_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE mv.vote_value <> 'absent'),
			ROUND(
				COUNT(*) FILTER (WHERE mv.vote_value <> 'absent')::numeric / COUNT(*),
				4
			),
			NOW()
		FROM member_votes mv
		GROUP BY mv.member_id
		ON CONFLICT (member_id) DO UPDATE SET
			votes_cast = EXCLUDED.votes_cast,
			votes_present = EXCLUDED.votes_present,
			attendance_rate = EXCLUDED.attendance_rate,
			computed_at = EXCLUDED.computed_at
	`

	result, err := s.db.ExecContext(ctx, aggregate)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute member scores: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
