// Package gmail is a small wrapper over the Gmail REST API covering the calls
// the dashboard makes: listing messages, reading metadata, trash/untrash,
// label changes and the profile check. Every call goes through a shared
// circuit breaker, is counted in mailsweep_gmail_requests_total and returns errors
// classified into the sentinels of errors.go.
package gmail

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/tbourn/mailsweep-backend/internal/observability"
)

// System label ids.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

const me = "me"

// metadataHeaders are the headers requested for message summaries.
var metadataHeaders = []string{"From", "Subject", "Date"}

// Options configures a Client.
type Options struct {
	// Endpoint overrides the API base URL, e.g. "http://127.0.0.1:8080/".
	Endpoint string
	// HTTPClient is the base transport the bearer token is layered on.
	HTTPClient *http.Client
	// BreakerName labels the circuit breaker in logs.
	BreakerName string
}

// Client builds per-user mailboxes that share one circuit breaker.
type Client struct {
	endpoint string
	base     *http.Client
	cb       *gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// New returns a Client.
func New(opts Options, lg zerolog.Logger) *Client {
	name := opts.BreakerName
	if name == "" {
		name = "gmail-api"
	}
	lg = lg.With().Str("component", "gmail").Logger()
	c := &Client{
		endpoint: strings.TrimSpace(opts.Endpoint),
		base:     opts.HTTPClient,
		log:      lg,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 || (counts.Requests >= 10 && ratio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool { return !tripsBreaker(err) },
	})
	return c
}

// BreakerState returns the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string { return c.cb.State().String() }

// Mailbox returns an API handle authorized with accessToken.
func (c *Client) Mailbox(ctx context.Context, accessToken string) (*Mailbox, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	base := context.Background()
	if c.base != nil {
		base = context.WithValue(base, oauth2.HTTPClient, c.base)
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, ts))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, classify("new_service", err)
	}
	return &Mailbox{svc: svc, cb: c.cb}, nil
}

// MessageRef identifies a message in a listing.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListOptions filters a message listing.
type ListOptions struct {
	MaxResults int64
	LabelIDs   []string
	Query      string
	PageToken  string
}

// ListPage is one page of message references.
type ListPage struct {
	Messages      []MessageRef
	NextPageToken string
	SizeEstimate  int64
}

// Message is the metadata view of a message.
type Message struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Snippet  string
	Date     time.Time
	Labels   []string
}

// Unread reports whether the message carries the UNREAD label.
func (m *Message) Unread() bool {
	for _, l := range m.Labels {
		if l == LabelUnread {
			return true
		}
	}
	return false
}

// Profile is the connected account summary.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
	HistoryID     uint64
}

// Mailbox issues API calls for one authorized user.
type Mailbox struct {
	svc *gmailapi.Service
	cb  *gobreaker.CircuitBreaker
}

// call runs fn through the breaker, classifies the error and counts it.
func call[T any](m *Mailbox, op string, fn func() (T, error)) (T, error) {
	res, err := m.cb.Execute(func() (interface{}, error) { return fn() })
	err = classify(op, err)
	observability.GmailRequests.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}

// List returns one page of message references.
func (m *Mailbox) List(ctx context.Context, opts ListOptions) (*ListPage, error) {
	return call(m, "list", func() (*ListPage, error) {
		req := m.svc.Users.Messages.List(me)
		if opts.MaxResults > 0 {
			req = req.MaxResults(opts.MaxResults)
		}
		if len(opts.LabelIDs) > 0 {
			req = req.LabelIds(opts.LabelIDs...)
		}
		if opts.Query != "" {
			req = req.Q(opts.Query)
		}
		if opts.PageToken != "" {
			req = req.PageToken(opts.PageToken)
		}
		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		page := &ListPage{NextPageToken: resp.NextPageToken, SizeEstimate: resp.ResultSizeEstimate}
		for _, msg := range resp.Messages {
			page.Messages = append(page.Messages, MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
		}
		return page, nil
	})
}

// GetMetadata fetches the From, Subject and Date headers plus labels.
func (m *Mailbox) GetMetadata(ctx context.Context, id string) (*Message, error) {
	return call(m, "get", func() (*Message, error) {
		msg, err := m.svc.Users.Messages.Get(me, id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return toMessage(msg), nil
	})
}

// Trash moves a message to the trash.
func (m *Mailbox) Trash(ctx context.Context, id string) error {
	_, err := call(m, "trash", func() (struct{}, error) {
		_, err := m.svc.Users.Messages.Trash(me, id).Context(ctx).Do()
		return struct{}{}, err
	})
	return err
}

// Untrash restores a message from the trash.
func (m *Mailbox) Untrash(ctx context.Context, id string) error {
	_, err := call(m, "untrash", func() (struct{}, error) {
		_, err := m.svc.Users.Messages.Untrash(me, id).Context(ctx).Do()
		return struct{}{}, err
	})
	return err
}

// Modify adds and removes labels on a message.
func (m *Mailbox) Modify(ctx context.Context, id string, add, remove []string) error {
	_, err := call(m, "modify", func() (struct{}, error) {
		req := &gmailapi.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
		_, err := m.svc.Users.Messages.Modify(me, id, req).Context(ctx).Do()
		return struct{}{}, err
	})
	return err
}

// Archive removes the INBOX label.
func (m *Mailbox) Archive(ctx context.Context, id string) error {
	return m.Modify(ctx, id, nil, []string{LabelInbox})
}

// Unarchive adds the INBOX label back.
func (m *Mailbox) Unarchive(ctx context.Context, id string) error {
	return m.Modify(ctx, id, []string{LabelInbox}, nil)
}

// MarkRead removes the UNREAD label.
func (m *Mailbox) MarkRead(ctx context.Context, id string) error {
	return m.Modify(ctx, id, nil, []string{LabelUnread})
}

// MarkUnread adds the UNREAD label.
func (m *Mailbox) MarkUnread(ctx context.Context, id string) error {
	return m.Modify(ctx, id, []string{LabelUnread}, nil)
}

// Profile returns the connected account summary.
func (m *Mailbox) Profile(ctx context.Context) (*Profile, error) {
	return call(m, "profile", func() (*Profile, error) {
		p, err := m.svc.Users.GetProfile(me).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return &Profile{
			EmailAddress:  p.EmailAddress,
			MessagesTotal: p.MessagesTotal,
			ThreadsTotal:  p.ThreadsTotal,
			HistoryID:     p.HistoryId,
		}, nil
	})
}

func toMessage(msg *gmailapi.Message) *Message {
	out := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
	}
	var rawDate string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				out.From = h.Value
			case "subject":
				out.Subject = h.Value
			case "date":
				rawDate = h.Value
			}
		}
	}
	switch {
	case msg.InternalDate > 0:
		out.Date = time.UnixMilli(msg.InternalDate).UTC()
	case rawDate != "":
		out.Date = parseDate(rawDate)
	}
	return out
}
