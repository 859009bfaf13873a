package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrncir/parlsync/internal/ingest/upstream"
	"github.com/mhrncir/parlsync/internal/worker/domain"
	"github.com/mhrncir/parlsync/shared/logger"
)

func TestBillsRunner(t *testing.T) {
	t.Run("valid bills are persisted, bad ones counted", func(t *testing.T) {
		up := &fakeUpstream{
			bills: []upstream.Bill{
				{ExternalID: "b1", Title: "Energy act", Status: "in_committee", ProposedAt: "2026-01-05"},
				{ExternalID: "b2", Title: ""},
				{ExternalID: "b3", Title: "Budget act", Status: "first_reading"},
			},
		}
		store := newFakeStore()

		runner := NewBillsRunner(up, store, logger.NewDefault().Logger, "9")
		res, err := runner.Run(context.Background(), domain.JobParams{}, nil)
		require.NoError(t, err)

		assert.Equal(t, domain.Result{Processed: 2, Failed: 1}, res)
		assert.Contains(t, store.bills, "b1")
		assert.Contains(t, store.bills, "b3")
		assert.NotContains(t, store.bills, "b2")
	})

	t.Run("limit caps the batch", func(t *testing.T) {
		up := &fakeUpstream{
			bills: []upstream.Bill{
				{ExternalID: "b1", Title: "One"},
				{ExternalID: "b2", Title: "Two"},
			},
		}
		store := newFakeStore()

		runner := NewBillsRunner(up, store, logger.NewDefault().Logger, "9")
		res, err := runner.Run(context.Background(), domain.JobParams{Limit: 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.Result{Processed: 1}, res)
	})

	t.Run("list fetch failure is retryable", func(t *testing.T) {
		up := &fakeUpstream{billsErr: errors.New("503")}

		runner := NewBillsRunner(up, newFakeStore(), logger.NewDefault().Logger, "9")
		_, err := runner.Run(context.Background(), domain.JobParams{}, nil)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestScoresRunner(t *testing.T) {
	t.Run("reports written rows", func(t *testing.T) {
		store := newFakeStore()
		store.scoreRows = 150

		runner := NewScoresRunner(store, logger.NewDefault().Logger)
		res, err := runner.Run(context.Background(), domain.JobParams{}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.Result{Processed: 150}, res)
	})

	t.Run("aggregation failure is retryable", func(t *testing.T) {
		store := newFakeStore()
		store.scoresErr = errors.New("connection reset")

		runner := NewScoresRunner(store, logger.NewDefault().Logger)
		_, err := runner.Run(context.Background(), domain.JobParams{}, nil)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
	})
}
