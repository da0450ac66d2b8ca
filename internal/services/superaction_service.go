// Package services – SuperActionService
//
// This file implements the bulk action executor. A super action deletes or
// archives every known message from the selected senders, or every message
// older than a day count, while never touching a sender on the user's safe
// list. The job moves through
//
//	idle → computing-affected-set → awaiting-confirmation → processing →
//	completed | partially_failed | failed
//
// where the confirmation is the client's two-step dialog that precedes the
// HTTP call. Partial failure is a normal outcome: failed ids are reported,
// never retried. Jobs can be restored inside their undo window.
//
// Observability: Execute and Undo are OpenTelemetry-instrumented and every
// finished job is counted in mailsweep_super_actions_total.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/observability"
	"github.com/tbourn/mailsweep-backend/internal/ratelimit"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/safesender"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

// Super action kinds.
const (
	SuperDeleteBySender       = "delete_by_sender"
	SuperArchiveBySender      = "archive_by_sender"
	SuperDeleteOld            = "delete_old"
	SuperArchiveOld           = "archive_old"
	SuperUnsubscribeAndDelete = "unsubscribe_and_delete"
)

// Job types stored in action_history.action_type.
const (
	JobSuperDelete  = "super_delete"
	JobSuperArchive = "super_archive"
)

const (
	defaultMinSafeSenders = 3
	defaultUndoWindow     = 29 * 24 * time.Hour
	maxErrorSamples       = 5
)

// EmailItem is a message the client already knows about.
type EmailItem struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Snippet  string
	Date     time.Time
}

// SuperActionRequest is one confirmed super action.
type SuperActionRequest struct {
	Action           string
	SelectedEmailIDs []string
	AllEmails        []EmailItem
	Days             *int
}

// SuperActionResult reports the outcome of Execute.
type SuperActionResult struct {
	ActionID       string
	Status         string
	ProcessedCount int
	FailedCount    int
	FailedIDs      []string
	HeldBack       int
	Message        string
}

// UndoResult reports the outcome of Undo.
type UndoResult struct {
	ActionID      string   `json:"action_id"`
	RestoredCount int      `json:"restored_count"`
	FailedCount   int      `json:"failed_count"`
	FailedIDs     []string `json:"failed_ids"`
	Message       string   `json:"message"`
}

// SuperActionStatus summarizes whether the user may run super actions.
type SuperActionStatus struct {
	CanUse                 bool `json:"can_use"`
	SafeSendersCount       int  `json:"safe_senders_count"`
	RequiredCount          int  `json:"required_count"`
	SafeSendersRequired    bool `json:"safe_senders_required"`
	TrainingModeActive     bool `json:"training_mode_active"`
	DaysLimit              int  `json:"days_limit"`
	SuccessfulActionsCount int  `json:"successful_actions_count"`
}

// SuperActionPolicy holds the gate parameters.
type SuperActionPolicy struct {
	MinSafeSenders int
	UndoWindow     time.Duration
}

// SuperActionService runs super actions.
type SuperActionService struct {
	DB         *gorm.DB
	Tokens     TokenProvider
	Mailboxes  MailboxOpener
	Batcher    Dispatcher
	SafeSender *SafeSenderService
	History    *HistoryService
	Policy     SuperActionPolicy
	Log        zerolog.Logger
	Locale     language.Tag

	now func() time.Time
}

// NewSuperActionService wires a SuperActionService with default policy values
// for zero fields.
func NewSuperActionService(db *gorm.DB, tokens TokenProvider, mailboxes MailboxOpener, batcher Dispatcher, policy SuperActionPolicy, lg zerolog.Logger) *SuperActionService {
	if policy.MinSafeSenders < 0 {
		policy.MinSafeSenders = defaultMinSafeSenders
	}
	if policy.UndoWindow <= 0 {
		policy.UndoWindow = defaultUndoWindow
	}
	return &SuperActionService{
		DB:         db,
		Tokens:     tokens,
		Mailboxes:  mailboxes,
		Batcher:    batcher,
		SafeSender: NewSafeSenderService(db, repoSafeSenders{}),
		History:    &HistoryService{DB: db},
		Policy:     policy,
		Log:        lg.With().Str("component", "super_actions").Logger(),
		Locale:     language.English,
		now:        time.Now,
	}
}

// ValidSuperAction reports whether kind is a known super action.
func ValidSuperAction(kind string) bool {
	switch kind {
	case SuperDeleteBySender, SuperArchiveBySender, SuperDeleteOld, SuperArchiveOld, SuperUnsubscribeAndDelete:
		return true
	}
	return false
}

func isArchiveKind(kind string) bool {
	return kind == SuperArchiveBySender || kind == SuperArchiveOld
}

func isByAgeKind(kind string) bool {
	return kind == SuperDeleteOld || kind == SuperArchiveOld
}

// Execute gates, resolves the affected set and runs the super action.
func (s *SuperActionService) Execute(ctx context.Context, sess token.Session, req SuperActionRequest) (*SuperActionResult, error) {
	tr := otel.Tracer("services/SuperActionService")
	ctx, span := tr.Start(ctx, "Execute", trace.WithAttributes(
		attribute.String("user.id", sess.UserID),
		attribute.String("super_action", req.Action),
		attribute.Int("known_emails", len(req.AllEmails)),
	))
	defer span.End()

	lg := s.Log.With().Str("user_id", sess.UserID).Str("action", req.Action).Logger()
	p := message.NewPrinter(s.Locale)

	settings, err := repo.GetOrCreateSettings(ctx, s.DB, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.SafeSendersRequired {
		n, err := s.SafeSender.Count(ctx, sess.UserID)
		if err != nil {
			return nil, fmt.Errorf("count safe senders: %w", err)
		}
		if int(n) < s.Policy.MinSafeSenders {
			lg.Info().Int64("safe_senders", n).Msg("super action rejected: not enough safe senders")
			return nil, ErrInsufficientSafeSenders
		}
	}
	if !ValidSuperAction(req.Action) {
		return nil, ErrInvalidAction
	}
	if isByAgeKind(req.Action) && (req.Days == nil || *req.Days < 0) {
		return nil, ErrInvalidDays
	}

	// Past the gate a job runs to completion even if the client disconnects.
	ctx = context.WithoutCancel(ctx)

	lg.Debug().Msg("computing affected set")
	patterns, err := s.SafeSender.Patterns(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load safe senders: %w", err)
	}
	now := s.now().UTC()
	affected, heldBack := resolveAffected(req, patterns, settings, now)
	span.SetAttributes(attribute.Int("affected", len(affected)), attribute.Int("held_back", heldBack))

	if len(affected) == 0 {
		msg := "No emails to process (all senders might be in your safe list)"
		if heldBack > 0 {
			msg = p.Sprintf("No emails to process (%d older emails are held back by training mode)", heldBack)
		}
		lg.Info().Int("held_back", heldBack).Msg("super action matched no emails")
		return &SuperActionResult{Status: domain.StatusCompleted, HeldBack: heldBack, Message: msg}, nil
	}

	ids := make([]string, len(affected))
	byID := make(map[string]EmailItem, len(affected))
	for i, it := range affected {
		ids[i] = it.ID
		byID[it.ID] = it
	}

	job := s.startJob(ctx, lg, sess.UserID, req.Action, ids, now)

	mb, err := openMailbox(ctx, s.Tokens, s.Mailboxes, sess)
	if err != nil {
		s.failJob(ctx, lg, sess.UserID, job, err)
		observability.SuperActions.WithLabelValues(req.Action, domain.StatusFailed).Inc()
		return nil, err
	}

	archive := isArchiveKind(req.Action)
	lg.Info().Int("affected", len(ids)).Bool("archive", archive).Msg("processing super action")
	sum := s.Batcher.ProcessAll(ctx, sess.UserID, s.Batcher.Batches(ids), func(ctx context.Context, id string) error {
		var err error
		if archive {
			err = mb.Archive(ctx, id)
		} else {
			err = mb.Trash(ctx, id)
		}
		if err != nil {
			throttleOn(s.Batcher, err)
			lg.Warn().Err(err).Str("email_id", id).Msg("super action item failed")
		}
		return err
	})

	status := finalStatus(len(sum.Succeeded), len(sum.Failed))
	s.finishJob(ctx, lg, sess.UserID, job, status, sum)

	historyAction := domain.ActionDelete
	if archive {
		historyAction = domain.ActionArchive
	}
	entries := make([]HistoryEntry, 0, len(sum.Succeeded))
	for _, id := range sum.Succeeded {
		it := byID[id]
		details := map[string]any{
			"super_action": req.Action,
			"subject":      it.Subject,
			"from":         it.From,
			"snippet":      it.Snippet,
		}
		if job != nil {
			details["action_id"] = job.ID
		}
		entries = append(entries, HistoryEntry{
			EmailID:    id,
			ThreadID:   it.ThreadID,
			Action:     historyAction,
			ActionType: domain.ActionTypeAutomated,
			Details:    details,
		})
	}
	if err := s.History.Record(ctx, sess.UserID, entries...); err != nil {
		lg.Warn().Err(err).Msg("record email history failed")
	}

	if len(sum.Succeeded) > 0 {
		if recordSuccess(settings) {
			lg.Info().Bool("training_mode", settings.TrainingModeActive).Int("days_limit", settings.DaysLimit).Msg("training limits relaxed")
		}
		if err := repo.SaveSettings(ctx, s.DB, settings); err != nil {
			lg.Warn().Err(err).Msg("save settings failed")
		}
	}

	observability.SuperActions.WithLabelValues(req.Action, status).Inc()
	lg.Info().Str("status", status).Int("processed", len(sum.Succeeded)).Int("failed", len(sum.Failed)).Msg("super action finished")

	res := &SuperActionResult{
		Status:         status,
		ProcessedCount: len(sum.Succeeded),
		FailedCount:    len(sum.Failed),
		FailedIDs:      sum.FailedIDs(),
		HeldBack:       heldBack,
		Message:        resultMessage(p, len(sum.Succeeded), len(sum.Failed), heldBack),
	}
	if job != nil {
		res.ActionID = job.ID
	}
	return res, nil
}

// Undo restores the messages a job trashed or archived while its undo window
// is open. Only items that succeeded originally are touched.
func (s *SuperActionService) Undo(ctx context.Context, sess token.Session, actionID string) (*UndoResult, error) {
	tr := otel.Tracer("services/SuperActionService")
	ctx, span := tr.Start(ctx, "Undo", trace.WithAttributes(
		attribute.String("user.id", sess.UserID),
		attribute.String("action.id", actionID),
	))
	defer span.End()

	lg := s.Log.With().Str("user_id", sess.UserID).Str("action_id", actionID).Logger()
	job, err := repo.GetActionHistory(ctx, s.DB, actionID, sess.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusCompleted && job.Status != domain.StatusPartiallyFailed {
		return nil, ErrNotUndoable
	}
	if !s.now().Before(job.CanUndoUntil) {
		return nil, ErrUndoExpired
	}

	ids := succeededIDs(job)
	p := message.NewPrinter(s.Locale)
	if len(ids) == 0 {
		return nil, ErrNotUndoable
	}
	ctx = context.WithoutCancel(ctx)

	mb, err := openMailbox(ctx, s.Tokens, s.Mailboxes, sess)
	if err != nil {
		return nil, err
	}

	restoreArchive := job.ActionType == JobSuperArchive
	sum := s.Batcher.ProcessAll(ctx, sess.UserID, s.Batcher.Batches(ids), func(ctx context.Context, id string) error {
		var err error
		if restoreArchive {
			err = mb.Unarchive(ctx, id)
		} else {
			err = mb.Untrash(ctx, id)
		}
		if err != nil {
			throttleOn(s.Batcher, err)
			lg.Warn().Err(err).Str("email_id", id).Msg("undo item failed")
		}
		return err
	})

	fields := map[string]any{
		"status":     domain.StatusUndone,
		"updated_at": s.now().UTC(),
	}
	if len(sum.Failed) > 0 {
		fields["error_details"] = errorDetails("undo", sum)
	}
	if len(sum.Succeeded) == 0 {
		fields["status"] = job.Status
	}
	if err := repo.UpdateActionHistory(ctx, s.DB, job.ID, sess.UserID, fields); err != nil {
		lg.Warn().Err(err).Msg("update action history after undo failed")
	}
	lg.Info().Int("restored", len(sum.Succeeded)).Int("failed", len(sum.Failed)).Msg("super action undone")

	msg := p.Sprintf("Restored %d emails", len(sum.Succeeded))
	if len(sum.Failed) > 0 {
		msg += p.Sprintf(" (%d failed)", len(sum.Failed))
	}
	return &UndoResult{
		ActionID:      job.ID,
		RestoredCount: len(sum.Succeeded),
		FailedCount:   len(sum.Failed),
		FailedIDs:     sum.FailedIDs(),
		Message:       msg,
	}, nil
}

// Status reports the super action gate for userID.
func (s *SuperActionService) Status(ctx context.Context, userID string) (*SuperActionStatus, error) {
	settings, err := repo.GetOrCreateSettings(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.SafeSender.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SuperActionStatus{
		CanUse:                 !settings.SafeSendersRequired || int(n) >= s.Policy.MinSafeSenders,
		SafeSendersCount:       int(n),
		RequiredCount:          s.Policy.MinSafeSenders,
		SafeSendersRequired:    settings.SafeSendersRequired,
		TrainingModeActive:     settings.TrainingModeActive,
		DaysLimit:              settings.DaysLimit,
		SuccessfulActionsCount: settings.SuccessfulActionsCount,
	}, nil
}

// resolveAffected returns the items the action applies to, in input order,
// and how many were held back by training mode.
func resolveAffected(req SuperActionRequest, patterns []string, settings *domain.UserSettings, now time.Time) ([]EmailItem, int) {
	var candidate func(it EmailItem, addr string) bool
	if isByAgeKind(req.Action) {
		cutoff := now.AddDate(0, 0, -*req.Days)
		candidate = func(it EmailItem, _ string) bool {
			return !it.Date.IsZero() && it.Date.Before(cutoff)
		}
	} else {
		selected := make(map[string]struct{}, len(req.SelectedEmailIDs))
		for _, id := range req.SelectedEmailIDs {
			selected[id] = struct{}{}
		}
		senders := make(map[string]struct{})
		for _, it := range req.AllEmails {
			if _, ok := selected[it.ID]; !ok {
				continue
			}
			if addr := safesender.ExtractAddress(it.From); addr != "" {
				senders[addr] = struct{}{}
			}
		}
		candidate = func(_ EmailItem, addr string) bool {
			_, ok := senders[addr]
			return ok
		}
	}

	var trainingCutoff time.Time
	training := settings != nil && settings.TrainingModeActive && settings.DaysLimit > 0
	if training {
		trainingCutoff = now.AddDate(0, 0, -settings.DaysLimit)
	}

	seen := make(map[string]struct{}, len(req.AllEmails))
	var out []EmailItem
	heldBack := 0
	for _, it := range req.AllEmails {
		if it.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		addr := safesender.ExtractAddress(it.From)
		if addr == "" || !candidate(it, addr) || safesender.MatchesAny(addr, patterns) {
			continue
		}
		seen[it.ID] = struct{}{}
		if training && (it.Date.IsZero() || it.Date.Before(trainingCutoff)) {
			heldBack++
			continue
		}
		out = append(out, it)
	}
	return out, heldBack
}

// startJob inserts the processing row. Failures are logged and yield nil.
func (s *SuperActionService) startJob(ctx context.Context, lg zerolog.Logger, userID, kind string, ids []string, now time.Time) *domain.ActionHistory {
	jobType := JobSuperDelete
	if isArchiveKind(kind) {
		jobType = JobSuperArchive
	}
	job := &domain.ActionHistory{
		UserID:         userID,
		ActionType:     jobType,
		SuperAction:    kind,
		AffectedEmails: encodeIDs(ids),
		FailedEmails:   "[]",
		AffectedCount:  len(ids),
		Status:         domain.StatusProcessing,
		CanUndoUntil:   now.Add(s.Policy.UndoWindow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreateActionHistory(ctx, s.DB, job); err != nil {
		lg.Warn().Err(err).Msg("record action history failed, continuing without it")
		return nil
	}
	return job
}

func (s *SuperActionService) finishJob(ctx context.Context, lg zerolog.Logger, userID string, job *domain.ActionHistory, status string, sum ratelimit.Summary) {
	if job == nil {
		return
	}
	done := s.now().UTC()
	fields := map[string]any{
		"status":          status,
		"processed_count": len(sum.Succeeded),
		"failed_count":    len(sum.Failed),
		"failed_emails":   encodeIDs(sum.FailedIDs()),
		"completed_at":    done,
		"updated_at":      done,
	}
	if len(sum.Failed) > 0 {
		fields["error_details"] = errorDetails("execute", sum)
	}
	if err := repo.UpdateActionHistory(ctx, s.DB, job.ID, userID, fields); err != nil {
		lg.Warn().Err(err).Msg("update action history failed")
	}
}

func (s *SuperActionService) failJob(ctx context.Context, lg zerolog.Logger, userID string, job *domain.ActionHistory, cause error) {
	if job == nil {
		return
	}
	done := s.now().UTC()
	details, _ := json.Marshal(map[string]any{"stage": "authorize", "error": cause.Error()})
	fields := map[string]any{
		"status":        domain.StatusFailed,
		"failed_count":  job.AffectedCount,
		"failed_emails": job.AffectedEmails,
		"completed_at":  done,
		"updated_at":    done,
		"error_details": string(details),
	}
	if err := repo.UpdateActionHistory(ctx, s.DB, job.ID, userID, fields); err != nil {
		lg.Warn().Err(err).Msg("update action history failed")
	}
}

func finalStatus(succeeded, failed int) string {
	switch {
	case failed == 0:
		return domain.StatusCompleted
	case succeeded == 0:
		return domain.StatusFailed
	default:
		return domain.StatusPartiallyFailed
	}
}

func resultMessage(p *message.Printer, processed, failed, heldBack int) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("Successfully processed %d emails", processed))
	if failed > 0 {
		b.WriteString(p.Sprintf(" (%d failed)", failed))
	}
	if heldBack > 0 {
		b.WriteString(p.Sprintf("; %d older emails held back by training mode", heldBack))
	}
	return b.String()
}

func errorDetails(stage string, sum ratelimit.Summary) string {
	samples := make([]map[string]string, 0, maxErrorSamples)
	for _, f := range sum.Failed {
		if len(samples) == maxErrorSamples {
			break
		}
		samples = append(samples, map[string]string{"email_id": f.ID, "error": f.Err.Error()})
	}
	b, _ := json.Marshal(map[string]any{
		"stage":        stage,
		"failed_count": len(sum.Failed),
		"samples":      samples,
	})
	return string(b)
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(raw string) []string {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// succeededIDs returns the affected ids of job minus its failed ids.
func succeededIDs(job *domain.ActionHistory) []string {
	failed := make(map[string]struct{})
	for _, id := range decodeIDs(job.FailedEmails) {
		failed[id] = struct{}{}
	}
	var out []string
	for _, id := range decodeIDs(job.AffectedEmails) {
		if _, ok := failed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// repoSafeSenders adapts the repository free functions to SafeSenderRepo.
type repoSafeSenders struct{}

func (repoSafeSenders) CreateSafeSender(ctx context.Context, db *gorm.DB, userID, pattern string) (*domain.SafeSender, error) {
	return repo.CreateSafeSender(ctx, db, userID, pattern)
}

func (repoSafeSenders) ListSafeSenders(ctx context.Context, db *gorm.DB, userID string) ([]domain.SafeSender, error) {
	return repo.ListSafeSenders(ctx, db, userID)
}

func (repoSafeSenders) CountSafeSenders(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSafeSenders(ctx, db, userID)
}

func (repoSafeSenders) DeleteSafeSender(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSafeSender(ctx, db, id, userID)
}
