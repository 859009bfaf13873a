package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrncir/parlsync/internal/ingest/upstream"
)

func validDetail() *upstream.VoteDetail {
	return &upstream.VoteDetail{
		ExternalID: "v1",
		SittingID:  "s1",
		SessionID:  "101",
		Question:   "Final vote on the budget",
		For:        "80",
		Against:    "50",
		Abstain:    "10",
		Total:      "150",
		Comment:    "",
		Date:       "2026-01-12T14:03:00",
		Members: []upstream.MemberBallot{
			{ExternalID: "M001", Value: "Z"},
			{ExternalID: "M002", Value: "proti"},
		},
	}
}

func TestNormalizeVoteValue(t *testing.T) {
	tests := []struct {
		raw    string
		want   VoteValue
		wantOK bool
	}{
		{"Z", VoteFor, true},
		{"za", VoteFor, true},
		{"P", VoteAgainst, true},
		{"proti", VoteAgainst, true},
		{"?", VoteAbstain, true},
		{"zdržal sa", VoteAbstain, true},
		{"0", VoteAbsent, true},
		{"neprítomný", VoteAbsent, true},
		{"N", VoteDidNotVote, true},
		{"nehlasoval", VoteDidNotVote, true},
		{" Z ", VoteFor, true},
		{"maybe", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeVoteValue(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVoteRecord(t *testing.T) {
	gate := NewGate()

	t.Run("valid record passes with coerced fields", func(t *testing.T) {
		rec, err := gate.VoteRecord(validDetail())
		require.NoError(t, err)

		assert.Equal(t, "v1", rec.ExternalID)
		assert.Equal(t, 80, rec.For)
		assert.Equal(t, 150, rec.Total)
		assert.Equal(t, time.Date(2026, 1, 12, 14, 3, 0, 0, time.UTC), rec.VotedAt)
		require.Len(t, rec.Members, 2)
		assert.Equal(t, VoteFor, rec.Members[0].Value)
		assert.Equal(t, VoteAgainst, rec.Members[1].Value)
	})

	t.Run("empty tallies default to zero", func(t *testing.T) {
		detail := validDetail()
		detail.For = ""
		detail.Abstain = " "

		rec, err := gate.VoteRecord(detail)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.For)
		assert.Equal(t, 0, rec.Abstain)
	})

	t.Run("missing identity fields are reported", func(t *testing.T) {
		detail := validDetail()
		detail.ExternalID = ""
		detail.Question = "  "

		_, err := gate.VoteRecord(detail)
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		verr := err.(*Error)
		assert.Contains(t, verr.Fields, "external_id")
		assert.Contains(t, verr.Fields, "question")
	})

	t.Run("non-integer tally is reported", func(t *testing.T) {
		detail := validDetail()
		detail.For = "eighty"

		_, err := gate.VoteRecord(detail)
		require.True(t, IsValidationError(err))
		assert.Contains(t, err.(*Error).Fields, "for")
	})

	t.Run("negative tally is reported", func(t *testing.T) {
		detail := validDetail()
		detail.Against = "-3"

		_, err := gate.VoteRecord(detail)
		require.True(t, IsValidationError(err))
		assert.Contains(t, err.(*Error).Fields, "against")
	})

	t.Run("unparseable date is reported", func(t *testing.T) {
		detail := validDetail()
		detail.Date = "sometime in January"

		_, err := gate.VoteRecord(detail)
		require.True(t, IsValidationError(err))
		assert.Contains(t, err.(*Error).Fields, "date")
	})

	t.Run("dotted date layout is accepted", func(t *testing.T) {
		detail := validDetail()
		detail.Date = "12.01.2026 14:03"

		rec, err := gate.VoteRecord(detail)
		require.NoError(t, err)
		assert.Equal(t, 2026, rec.VotedAt.Year())
	})

	t.Run("unknown ballot spelling is a failure, not a default", func(t *testing.T) {
		detail := validDetail()
		detail.Members = append(detail.Members, upstream.MemberBallot{ExternalID: "M003", Value: "perhaps"})

		_, err := gate.VoteRecord(detail)
		require.True(t, IsValidationError(err))
		assert.Contains(t, err.(*Error).Fields, "members[2].value")
	})
}

func TestBill(t *testing.T) {
	gate := NewGate()

	t.Run("valid bill passes", func(t *testing.T) {
		rec, err := gate.Bill(upstream.Bill{
			ExternalID: "b1",
			Title:      "Energy act",
			Status:     "in_committee",
			ProposedAt: "2026-01-05",
		})
		require.NoError(t, err)
		assert.Equal(t, "b1", rec.ExternalID)
		assert.Equal(t, 2026, rec.ProposedAt.Year())
	})

	t.Run("missing title is reported", func(t *testing.T) {
		_, err := gate.Bill(upstream.Bill{ExternalID: "b1"})
		require.True(t, IsValidationError(err))
		assert.Contains(t, err.(*Error).Fields, "title")
	})
}
