package validate

import "strings"

// VoteValue is the canonical, closed enumeration of individual ballot
// values. Everything the upstream emits is folded into one of these five
// tags before it may touch storage.
type VoteValue string

const (
	VoteFor        VoteValue = "for"
	VoteAgainst    VoteValue = "against"
	VoteAbstain    VoteValue = "abstain"
	VoteAbsent     VoteValue = "absent"
	VoteDidNotVote VoteValue = "did-not-vote"
)

// voteSynonyms maps every known upstream spelling, short codes and
// localized words alike, to its canonical tag. The table is deliberately
// closed: an unknown spelling is a validation failure, never a silent
// default.
var voteSynonyms = map[string]VoteValue{
	"z":            VoteFor,
	"za":           VoteFor,
	"for":          VoteFor,
	"p":            VoteAgainst,
	"proti":        VoteAgainst,
	"against":      VoteAgainst,
	"?":            VoteAbstain,
	"zdrzal sa":    VoteAbstain,
	"zdržal sa":    VoteAbstain,
	"abstain":      VoteAbstain,
	"0":            VoteAbsent,
	"nepritomny":   VoteAbsent,
	"neprítomný":   VoteAbsent,
	"absent":       VoteAbsent,
	"n":            VoteDidNotVote,
	"nehlasoval":   VoteDidNotVote,
	"did-not-vote": VoteDidNotVote,
}

// NormalizeVoteValue folds a raw upstream ballot spelling into the
// canonical enumeration. ok is false for unknown spellings.
func NormalizeVoteValue(raw string) (VoteValue, bool) {
	v, ok := voteSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}
