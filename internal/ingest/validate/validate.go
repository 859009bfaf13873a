package validate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mhrncir/parlsync/internal/ingest/upstream"
)

// Error is a structured validation failure carrying the offending field
// paths. The worker treats this type as "skip the record and count it as
// failed"; every other error class is infrastructure trouble.
type Error struct {
	Fields []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// IsValidationError reports whether err is a record-level validation
// failure.
func IsValidationError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// VoteRecord is a vote that passed the gate: identity fields present,
// tallies coerced and non-negative, date parsed, ballots canonical.
type VoteRecord struct {
	ExternalID string `validate:"required"`
	SittingID  string `validate:"required"`
	SessionID  string `validate:"required"`
	Question   string `validate:"required"`
	For        int    `validate:"gte=0"`
	Against    int    `validate:"gte=0"`
	Abstain    int    `validate:"gte=0"`
	Total      int    `validate:"gte=0"`
	Comment    string
	VotedAt    time.Time
	Members    []MemberVote `validate:"dive"`
}

// MemberVote is one canonicalized ballot within a validated vote record.
type MemberVote struct {
	ExternalMemberID string    `validate:"required"`
	Value            VoteValue `validate:"required"`
}

// BillRecord is a bill that passed the gate.
type BillRecord struct {
	ExternalID string `validate:"required"`
	Title      string `validate:"required"`
	Status     string
	ProposedAt time.Time
}

// dateLayouts are the date spellings the upstream has been seen to emit.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// Gate schema-validates untrusted upstream records before they are allowed
// to touch storage.
type Gate struct {
	validate *validator.Validate
}

// NewGate creates a new validation gate
func NewGate() *Gate {
	return &Gate{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// VoteRecord coerces and validates one raw vote. On violation it returns
// a *Error listing the offending field paths.
func (g *Gate) VoteRecord(raw *upstream.VoteDetail) (*VoteRecord, error) {
	var badFields []string

	rec := &VoteRecord{
		ExternalID: strings.TrimSpace(raw.ExternalID),
		SittingID:  strings.TrimSpace(raw.SittingID),
		SessionID:  strings.TrimSpace(raw.SessionID),
		Question:   strings.TrimSpace(raw.Question),
		Comment:    raw.Comment,
	}

	rec.For = coerceTally(raw.For, "for", &badFields)
	rec.Against = coerceTally(raw.Against, "against", &badFields)
	rec.Abstain = coerceTally(raw.Abstain, "abstain", &badFields)
	rec.Total = coerceTally(raw.Total, "total", &badFields)

	if votedAt, ok := coerceDate(raw.Date); ok {
		rec.VotedAt = votedAt
	} else {
		badFields = append(badFields, "date")
	}

	rec.Members = make([]MemberVote, 0, len(raw.Members))
	for i, m := range raw.Members {
		value, ok := NormalizeVoteValue(m.Value)
		if !ok {
			badFields = append(badFields, fmt.Sprintf("members[%d].value", i))
			continue
		}
		rec.Members = append(rec.Members, MemberVote{
			ExternalMemberID: strings.TrimSpace(m.ExternalID),
			Value:            value,
		})
	}

	badFields = append(badFields, g.structFields(rec)...)

	if len(badFields) > 0 {
		return nil, &Error{Fields: badFields}
	}

	return rec, nil
}

// Bill coerces and validates one raw bill.
func (g *Gate) Bill(raw upstream.Bill) (*BillRecord, error) {
	var badFields []string

	rec := &BillRecord{
		ExternalID: strings.TrimSpace(raw.ExternalID),
		Title:      strings.TrimSpace(raw.Title),
		Status:     strings.TrimSpace(raw.Status),
	}

	if raw.ProposedAt != "" {
		if proposedAt, ok := coerceDate(raw.ProposedAt); ok {
			rec.ProposedAt = proposedAt
		} else {
			badFields = append(badFields, "proposed")
		}
	}

	badFields = append(badFields, g.structFields(rec)...)

	if len(badFields) > 0 {
		return nil, &Error{Fields: badFields}
	}

	return rec, nil
}

// structFields runs the struct rules and translates violations into field
// paths.
func (g *Gate) structFields(rec any) []string {
	err := g.validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// validator.InvalidValidationError means a programming mistake,
		// not bad data.
		panic(err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe))
	}
	return fields
}

// fieldPath maps a validator violation to the record field path reported
// in Error.
func fieldPath(fe validator.FieldError) string {
	// Namespace looks like "VoteRecord.Members[2].Value"; drop the struct
	// name and lowercase the segments.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				prev := rune(s[i-1])
				if prev < 'A' || prev > 'Z' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// coerceTally parses a numeric tally, defaulting the empty string to 0.
func coerceTally(raw, field string, badFields *[]string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		*badFields = append(*badFields, field)
		return 0
	}
	return n
}

// coerceDate parses a date from any of the known upstream layouts.
func coerceDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
