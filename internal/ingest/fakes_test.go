package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mhrncir/parlsync/internal/ingest/persist"
	"github.com/mhrncir/parlsync/internal/ingest/resolve"
	"github.com/mhrncir/parlsync/internal/ingest/upstream"
	"github.com/mhrncir/parlsync/internal/ingest/validate"
)

type fakeUpstream struct {
	sessions    []upstream.Session
	sessionsErr error
	sittings    map[string][]upstream.Sitting
	sittingsErr error
	agendas     map[string][]upstream.AgendaItem
	agendaErrs  map[string]error
	votes       map[string]*upstream.VoteDetail
	voteErrs    map[string]error
	bills       []upstream.Bill
	billsErr    error

	voteCalls []string
}

func (f *fakeUpstream) Sessions(ctx context.Context, term string) ([]upstream.Session, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeUpstream) Sittings(ctx context.Context, sessionID string) ([]upstream.Sitting, error) {
	if f.sittingsErr != nil {
		return nil, f.sittingsErr
	}
	return f.sittings[sessionID], nil
}

func (f *fakeUpstream) Agenda(ctx context.Context, sittingID string) ([]upstream.AgendaItem, error) {
	if err := f.agendaErrs[sittingID]; err != nil {
		return nil, err
	}
	return f.agendas[sittingID], nil
}

func (f *fakeUpstream) VoteDetail(ctx context.Context, voteID string) (*upstream.VoteDetail, error) {
	f.voteCalls = append(f.voteCalls, voteID)
	if err := f.voteErrs[voteID]; err != nil {
		return nil, err
	}
	detail, ok := f.votes[voteID]
	if !ok {
		return nil, fmt.Errorf("no fixture for vote %s", voteID)
	}
	return detail, nil
}

func (f *fakeUpstream) Bills(ctx context.Context, term string) ([]upstream.Bill, error) {
	return f.bills, f.billsErr
}

type savedVote struct {
	rec     *validate.VoteRecord
	members []persist.MemberVoteRow
}

type fakeStore struct {
	mu        sync.Mutex
	saved     map[string]savedVote
	saveErrs  map[string]error
	bills     map[string]*validate.BillRecord
	scoreRows int64
	scoresErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved: make(map[string]savedVote),
		bills: make(map[string]*validate.BillRecord),
	}
}

func (f *fakeStore) SaveVoteRecord(ctx context.Context, rec *validate.VoteRecord, members []persist.MemberVoteRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErrs[rec.ExternalID]; err != nil {
		return err
	}
	f.saved[rec.ExternalID] = savedVote{rec: rec, members: members}
	return nil
}

func (f *fakeStore) SaveBill(ctx context.Context, rec *validate.BillRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bills[rec.ExternalID] = rec
	return nil
}

func (f *fakeStore) RecomputeScores(ctx context.Context) (int64, error) {
	return f.scoreRows, f.scoresErr
}

type fakeRoster struct {
	members []resolve.Member
	err     error
}

func (f *fakeRoster) ListMembers(ctx context.Context) ([]resolve.Member, error) {
	return f.members, f.err
}
