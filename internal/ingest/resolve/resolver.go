package resolve

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Member is one row of the member roster.
type Member struct {
	ID         int64  `db:"id"`
	ExternalID string `db:"external_id"`
	Name       string `db:"name"`
	Party      string `db:"party"`
}

// RosterSource provides the current member roster.
type RosterSource interface {
	ListMembers(ctx context.Context) ([]Member, error)
}

// SQLRoster reads the roster from the members table.
type SQLRoster struct {
	db *sqlx.DB
}

// NewSQLRoster creates a roster source backed by the members table
func NewSQLRoster(db *sqlx.DB) *SQLRoster {
	return &SQLRoster{db: db}
}

// ListMembers returns the full member roster
func (r *SQLRoster) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	query := `SELECT id, external_id, name, party FROM members`

	if err := r.db.SelectContext(ctx, &members, query); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// Resolver maps upstream member identifiers to internal primary keys. It
// is built once per job run so the per-record hot path never touches the
// database.
type Resolver struct {
	byExternal map[string]int64
}

// Load builds a resolver from the current roster.
func Load(ctx context.Context, source RosterSource) (*Resolver, error) {
	members, err := source.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load member roster: %w", err)
	}

	byExternal := make(map[string]int64, len(members))
	for _, m := range members {
		byExternal[m.ExternalID] = m.ID
	}

	return &Resolver{byExternal: byExternal}, nil
}

// Resolve returns the internal primary key for an upstream member id.
func (r *Resolver) Resolve(externalID string) (int64, bool) {
	id, ok := r.byExternal[externalID]
	return id, ok
}

// Size returns the number of roster entries loaded.
func (r *Resolver) Size() int {
	return len(r.byExternal)
}
