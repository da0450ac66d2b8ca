package services

import (
	"context"
	"time"

	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/ratelimit"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

// TokenProvider resolves a valid provider access token for a session.
type TokenProvider interface {
	AccessToken(ctx context.Context, s token.Session) (string, error)
}

// Mailbox is the provider surface the services call.
type Mailbox interface {
	List(ctx context.Context, opts gmail.ListOptions) (*gmail.ListPage, error)
	GetMetadata(ctx context.Context, id string) (*gmail.Message, error)
	Trash(ctx context.Context, id string) error
	Untrash(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	Profile(ctx context.Context) (*gmail.Profile, error)
}

// MailboxOpener returns a Mailbox authorized with accessToken.
type MailboxOpener func(ctx context.Context, accessToken string) (Mailbox, error)

// GmailMailboxes adapts a gmail.Client to MailboxOpener.
func GmailMailboxes(c *gmail.Client) MailboxOpener {
	return func(ctx context.Context, accessToken string) (Mailbox, error) {
		mb, err := c.Mailbox(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		return mb, nil
	}
}

// Dispatcher paces per-message provider calls.
type Dispatcher interface {
	Batches(ids []string) [][]string
	ProcessAll(ctx context.Context, userID string, batches [][]string, fn ratelimit.ItemFunc) ratelimit.Summary
	Throttle(d time.Duration)
}

// throttleOn feeds provider throttling back into the dispatcher.
func throttleOn(d Dispatcher, err error) {
	if wait := gmail.RetryAfter(err); wait > 0 {
		d.Throttle(wait)
	}
}

// openMailbox resolves the token and opens the provider client.
func openMailbox(ctx context.Context, tokens TokenProvider, open MailboxOpener, s token.Session) (Mailbox, error) {
	at, err := tokens.AccessToken(ctx, s)
	if err != nil {
		return nil, err
	}
	return open(ctx, at)
}

// dedupe drops blank and repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
