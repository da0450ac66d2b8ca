// Package services – HistoryService
//
// This file implements HistoryService, the recorder for the two audit
// tables. email_history gets one append-only row per message per action;
// action_history is read here for the paginated super action log.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/repo"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// HistoryEntry describes one action applied to one message.
type HistoryEntry struct {
	EmailID    string
	ThreadID   string
	Action     string
	ActionType string
	Details    map[string]any
}

// HistoryService records and lists mailbox history.
type HistoryService struct {
	DB *gorm.DB
}

// Record appends one email_history row per entry.
func (s *HistoryService) Record(ctx context.Context, userID string, entries ...HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Record", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("entries", len(entries)),
	))
	defer span.End()

	rows := make([]domain.EmailHistory, 0, len(entries))
	for _, e := range entries {
		row := domain.EmailHistory{
			UserID:     userID,
			EmailID:    e.EmailID,
			Action:     e.Action,
			ActionType: e.ActionType,
		}
		if e.ThreadID != "" {
			tid := e.ThreadID
			row.ThreadID = &tid
		}
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encode history details: %w", err)
			}
			row.Details = string(b)
		}
		rows = append(rows, row)
	}
	return repo.CreateEmailHistory(ctx, s.DB, rows)
}

// List returns up to limit rows for userID, newest first. Non-positive
// limits use 100; limits are capped at 500.
func (s *HistoryService) List(ctx context.Context, userID string, limit int) ([]domain.EmailHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	items, err := repo.ListEmailHistory(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.EmailHistory{}
	}
	return items, nil
}

// ListActions returns a page of super action jobs and the total count.
func (s *HistoryService) ListActions(ctx context.Context, userID string, page, pageSize int) ([]domain.ActionHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountActionHistory(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ActionHistory{}, 0, nil
	}
	items, err := repo.ListActionHistoryPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}
