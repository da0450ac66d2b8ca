// Package services – MailboxService
//
// This file implements MailboxService, which backs the dashboard's inbox view
// and its per-message buttons: listing recent messages with their headers,
// applying a manual action to a handful of ids, and the profile lookup used
// as a connection check.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/safesender"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

const (
	defaultListSize         = 50
	maxListSize             = 500
	defaultFetchConcurrency = 10
	maxManualIDs            = 1000
)

// EmailSummary is one inbox row as the dashboard shows it.
type EmailSummary struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	From        string    `json:"from"`
	FromAddress string    `json:"from_address"`
	Subject     string    `json:"subject"`
	Snippet     string    `json:"snippet"`
	Date        time.Time `json:"date"`
	Unread      bool      `json:"unread"`
	Labels      []string  `json:"labels"`
}

// ActionResult reports the outcome of a manual action.
type ActionResult struct {
	ProcessedCount int      `json:"processed_count"`
	FailedCount    int      `json:"failed_count"`
	FailedIDs      []string `json:"failed_ids"`
}

// MailboxService lists messages and applies manual actions.
type MailboxService struct {
	Tokens           TokenProvider
	Mailboxes        MailboxOpener
	Batcher          Dispatcher
	History          *HistoryService
	FetchConcurrency int
	Log              zerolog.Logger
}

// NewMailboxService constructs a MailboxService.
func NewMailboxService(tokens TokenProvider, mailboxes MailboxOpener, batcher Dispatcher, history *HistoryService, fetchConcurrency int, lg zerolog.Logger) *MailboxService {
	if fetchConcurrency < 1 {
		fetchConcurrency = defaultFetchConcurrency
	}
	return &MailboxService{
		Tokens:           tokens,
		Mailboxes:        mailboxes,
		Batcher:          batcher,
		History:          history,
		FetchConcurrency: fetchConcurrency,
		Log:              lg.With().Str("component", "mailbox").Logger(),
	}
}

// ListEmails returns up to maxResults messages carrying labelIDs (INBOX when
// empty), in provider order. Messages whose metadata cannot be fetched are
// logged and skipped.
func (s *MailboxService) ListEmails(ctx context.Context, sess token.Session, maxResults int, labelIDs []string) ([]EmailSummary, error) {
	if maxResults <= 0 {
		maxResults = defaultListSize
	}
	if maxResults > maxListSize {
		maxResults = maxListSize
	}
	if len(labelIDs) == 0 {
		labelIDs = []string{gmail.LabelInbox}
	}

	tr := otel.Tracer("services/MailboxService")
	ctx, span := tr.Start(ctx, "ListEmails", trace.WithAttributes(
		attribute.String("user.id", sess.UserID),
		attribute.Int("max_results", maxResults),
	))
	defer span.End()

	mb, err := openMailbox(ctx, s.Tokens, s.Mailboxes, sess)
	if err != nil {
		return nil, err
	}
	page, err := mb.List(ctx, gmail.ListOptions{MaxResults: int64(maxResults), LabelIDs: labelIDs})
	if err != nil {
		return nil, err
	}

	slots := make([]*EmailSummary, len(page.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.FetchConcurrency)
	for i, ref := range page.Messages {
		g.Go(func() error {
			m, err := mb.GetMetadata(gctx, ref.ID)
			if err != nil {
				if errors.Is(err, gmail.ErrUnauthorized) {
					return err
				}
				s.Log.Warn().Err(err).Str("email_id", ref.ID).Msg("fetch message metadata failed")
				return nil
			}
			slots[i] = summarize(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]EmailSummary, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			out = append(out, *it)
		}
	}
	span.SetAttributes(attribute.Int("returned", len(out)))
	return out, nil
}

func summarize(m *gmail.Message) *EmailSummary {
	labels := m.Labels
	if labels == nil {
		labels = []string{}
	}
	return &EmailSummary{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		From:        m.From,
		FromAddress: safesender.ExtractAddress(m.From),
		Subject:     m.Subject,
		Snippet:     m.Snippet,
		Date:        m.Date,
		Unread:      m.Unread(),
		Labels:      labels,
	}
}

// ValidManualAction reports whether action is a manual mailbox action.
func ValidManualAction(action string) bool {
	switch action {
	case domain.ActionDelete, domain.ActionArchive, domain.ActionMarkRead, domain.ActionMarkUnread:
		return true
	}
	return false
}

// Apply runs a manual action over ids and records one manual history row per
// succeeded id.
func (s *MailboxService) Apply(ctx context.Context, sess token.Session, action string, ids []string) (*ActionResult, error) {
	if !ValidManualAction(action) {
		return nil, ErrInvalidAction
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNoEmails
	}
	if len(ids) > maxManualIDs {
		return nil, ErrTooManyEmails
	}

	tr := otel.Tracer("services/MailboxService")
	ctx, span := tr.Start(ctx, "Apply", trace.WithAttributes(
		attribute.String("user.id", sess.UserID),
		attribute.String("action", action),
		attribute.Int("ids", len(ids)),
	))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	mb, err := openMailbox(ctx, s.Tokens, s.Mailboxes, sess)
	if err != nil {
		return nil, err
	}

	var op func(context.Context, string) error
	switch action {
	case domain.ActionDelete:
		op = mb.Trash
	case domain.ActionArchive:
		op = mb.Archive
	case domain.ActionMarkRead:
		op = mb.MarkRead
	case domain.ActionMarkUnread:
		op = mb.MarkUnread
	}

	sum := s.Batcher.ProcessAll(ctx, sess.UserID, s.Batcher.Batches(ids), func(ctx context.Context, id string) error {
		err := op(ctx, id)
		if err != nil {
			throttleOn(s.Batcher, err)
		}
		return err
	})

	entries := make([]HistoryEntry, 0, len(sum.Succeeded))
	for _, id := range sum.Succeeded {
		entries = append(entries, HistoryEntry{EmailID: id, Action: action, ActionType: domain.ActionTypeManual})
	}
	if s.History != nil {
		if err := s.History.Record(ctx, sess.UserID, entries...); err != nil {
			s.Log.Warn().Err(err).Str("user_id", sess.UserID).Msg("record email history failed")
		}
	}

	s.Log.Info().
		Str("user_id", sess.UserID).
		Str("action", action).
		Int("processed", len(sum.Succeeded)).
		Int("failed", len(sum.Failed)).
		Msg("manual action finished")

	failed := sum.FailedIDs()
	if failed == nil {
		failed = []string{}
	}
	return &ActionResult{
		ProcessedCount: len(sum.Succeeded),
		FailedCount:    len(sum.Failed),
		FailedIDs:      failed,
	}, nil
}

// Profile returns the connected mailbox profile.
func (s *MailboxService) Profile(ctx context.Context, sess token.Session) (*gmail.Profile, error) {
	mb, err := openMailbox(ctx, s.Tokens, s.Mailboxes, sess)
	if err != nil {
		return nil, err
	}
	return mb.Profile(ctx)
}
