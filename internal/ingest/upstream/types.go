package upstream

import "strings"

// Session is one parliamentary session within a term.
type Session struct {
	ID     string
	Number int
	Type   string
	From   string
	To     string
}

// Regular reports whether the session is a regular (as opposed to
// extraordinary) one. The upstream emits both localized and short-code
// spellings for the type attribute.
func (s Session) Regular() bool {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "r", "riadna", "regular":
		return true
	}
	return false
}

// Sitting is one sitting day of a session.
type Sitting struct {
	ID        string
	SessionID string
	Date      string
}

// AgendaItem is one agenda item of a sitting with its attached vote ids.
type AgendaItem struct {
	ID      string
	Title   string
	VoteIDs []string
}

// VoteDetail is the raw, untrusted record for one roll-call vote. Numeric
// tallies and the date are kept as strings; coercion is the validation
// gate's job.
type VoteDetail struct {
	ExternalID string
	SittingID  string
	SessionID  string
	Question   string
	For        string
	Against    string
	Abstain    string
	Total      string
	Comment    string
	Date       string
	Members    []MemberBallot
}

// MemberBallot is one member's raw ballot within a vote.
type MemberBallot struct {
	ExternalID string
	Name       string
	Value      string
}

// Bill is the raw record for one legislative bill.
type Bill struct {
	ExternalID string
	Title      string
	Status     string
	ProposedAt string
}

// ensureList normalizes a decoded slice so downstream code only ever deals
// with lists: a missing container decodes to nil, which becomes an empty
// slice here.
func ensureList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
