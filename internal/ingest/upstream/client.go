package upstream

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the upstream has no document at the
// requested path. Callers that treat absence as "zero records" check for
// it with errors.Is.
var ErrNotFound = errors.New("upstream resource not found")

// Config holds upstream client configuration
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client navigates the upstream's nested resource hierarchy
// (term → sessions → sittings → agenda items → votes) and translates its
// XML documents into typed records. It carries no retry logic; transient
// failures surface to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new upstream client
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

type sessionsXML struct {
	Sessions []struct {
		ID     string `xml:"id,attr"`
		Number int    `xml:"number,attr"`
		Type   string `xml:"type,attr"`
		From   string `xml:"from,attr"`
		To     string `xml:"to,attr"`
	} `xml:"session"`
}

// Sessions fetches all sessions of the given term.
func (c *Client) Sessions(ctx context.Context, term string) ([]Session, error) {
	var doc sessionsXML
	if err := c.get(ctx, fmt.Sprintf("/terms/%s/sessions", url.PathEscape(term)), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch sessions for term %s: %w", term, err)
	}

	sessions := make([]Session, 0, len(doc.Sessions))
	for _, s := range doc.Sessions {
		sessions = append(sessions, Session{
			ID:     s.ID,
			Number: s.Number,
			Type:   s.Type,
			From:   s.From,
			To:     s.To,
		})
	}

	return sessions, nil
}

type sittingsXML struct {
	Sittings []struct {
		ID   string `xml:"id,attr"`
		Date string `xml:"date,attr"`
	} `xml:"sitting"`
}

// Sittings fetches all sittings of the given session.
func (c *Client) Sittings(ctx context.Context, sessionID string) ([]Sitting, error) {
	var doc sittingsXML
	if err := c.get(ctx, fmt.Sprintf("/sessions/%s/sittings", url.PathEscape(sessionID)), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch sittings for session %s: %w", sessionID, err)
	}

	sittings := make([]Sitting, 0, len(doc.Sittings))
	for _, s := range doc.Sittings {
		sittings = append(sittings, Sitting{
			ID:        s.ID,
			SessionID: sessionID,
			Date:      s.Date,
		})
	}

	return sittings, nil
}

type voteRefXML struct {
	ID string `xml:"id,attr"`
}

type agendaXML struct {
	Items []struct {
		ID    string `xml:"id,attr"`
		Title string `xml:"title"`
		// The upstream is inconsistent about vote references: most
		// documents wrap them in a <votes> container, older ones attach
		// bare <vote> children directly to the item.
		Wrapped []voteRefXML `xml:"votes>vote"`
		Bare    []voteRefXML `xml:"vote"`
	} `xml:"item"`
}

// Agenda fetches the agenda items of a sitting. A sitting without agenda
// data yields zero items, not an error.
func (c *Client) Agenda(ctx context.Context, sittingID string) ([]AgendaItem, error) {
	var doc agendaXML
	err := c.get(ctx, fmt.Sprintf("/sittings/%s/agenda", url.PathEscape(sittingID)), &doc)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("Sitting has no agenda document",
			slog.String("sitting_id", sittingID),
		)
		return []AgendaItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agenda for sitting %s: %w", sittingID, err)
	}

	items := make([]AgendaItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		refs := append(ensureList(it.Wrapped), it.Bare...)
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			if ref.ID != "" {
				ids = append(ids, ref.ID)
			}
		}
		items = append(items, AgendaItem{
			ID:      it.ID,
			Title:   it.Title,
			VoteIDs: ids,
		})
	}

	return items, nil
}

type voteXML struct {
	ID       string `xml:"id,attr"`
	Sitting  string `xml:"sitting,attr"`
	Session  string `xml:"session,attr"`
	Date     string `xml:"date,attr"`
	Question string `xml:"question"`
	Comment  string `xml:"comment"`
	Totals   struct {
		For     string `xml:"for,attr"`
		Against string `xml:"against,attr"`
		Abstain string `xml:"abstain,attr"`
		Total   string `xml:"total,attr"`
	} `xml:"totals"`
	Members []struct {
		ID    string `xml:"id,attr"`
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"members>member"`
}

// VoteDetail fetches the detailed results of one roll-call vote.
func (c *Client) VoteDetail(ctx context.Context, voteID string) (*VoteDetail, error) {
	var doc voteXML
	if err := c.get(ctx, fmt.Sprintf("/votes/%s", url.PathEscape(voteID)), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch vote %s: %w", voteID, err)
	}

	members := make([]MemberBallot, 0, len(doc.Members))
	for _, m := range doc.Members {
		members = append(members, MemberBallot{
			ExternalID: m.ID,
			Name:       m.Name,
			Value:      m.Value,
		})
	}

	return &VoteDetail{
		ExternalID: doc.ID,
		SittingID:  doc.Sitting,
		SessionID:  doc.Session,
		Question:   strings.TrimSpace(doc.Question),
		For:        doc.Totals.For,
		Against:    doc.Totals.Against,
		Abstain:    doc.Totals.Abstain,
		Total:      doc.Totals.Total,
		Comment:    strings.TrimSpace(doc.Comment),
		Date:       doc.Date,
		Members:    members,
	}, nil
}

type billsXML struct {
	Bills []struct {
		ID       string `xml:"id,attr"`
		Status   string `xml:"status,attr"`
		Proposed string `xml:"proposed,attr"`
		Title    string `xml:"title"`
	} `xml:"bill"`
}

// Bills fetches the bill list of the given term.
func (c *Client) Bills(ctx context.Context, term string) ([]Bill, error) {
	var doc billsXML
	if err := c.get(ctx, fmt.Sprintf("/terms/%s/bills", url.PathEscape(term)), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch bills for term %s: %w", term, err)
	}

	bills := make([]Bill, 0, len(doc.Bills))
	for _, b := range doc.Bills {
		bills = append(bills, Bill{
			ExternalID: b.ID,
			Title:      strings.TrimSpace(b.Title),
			Status:     b.Status,
			ProposedAt: b.Proposed,
		})
	}

	return bills, nil
}

// get performs one GET request and decodes the XML body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
