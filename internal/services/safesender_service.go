// Package services – SafeSenderService
//
// This file implements SafeSenderService, which manages the per-user list of
// safe sender patterns that super actions never touch. Patterns are
// normalized and validated before they reach the repository so that the
// matcher only ever sees well-formed input.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/safesender"
)

// SafeSenderRepo defines the repository contract required by SafeSenderService.
type SafeSenderRepo interface {
	// CreateSafeSender inserts a normalized pattern; repo.ErrDuplicate on conflict.
	CreateSafeSender(ctx context.Context, db *gorm.DB, userID, pattern string) (*domain.SafeSender, error)

	// ListSafeSenders returns the user's patterns, newest first.
	ListSafeSenders(ctx context.Context, db *gorm.DB, userID string) ([]domain.SafeSender, error)

	// CountSafeSenders returns how many patterns the user has.
	CountSafeSenders(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// DeleteSafeSender removes a pattern owned by the user.
	DeleteSafeSender(ctx context.Context, db *gorm.DB, id, userID string) error
}

// SafeSenderService manages safe sender patterns.
type SafeSenderService struct {
	DB   *gorm.DB
	Repo SafeSenderRepo
}

// NewSafeSenderService constructs a SafeSenderService.
func NewSafeSenderService(db *gorm.DB, r SafeSenderRepo) *SafeSenderService {
	return &SafeSenderService{DB: db, Repo: r}
}

// Add validates pattern and stores it for userID.
func (s *SafeSenderService) Add(ctx context.Context, userID, pattern string) (*domain.SafeSender, error) {
	tr := otel.Tracer("services/SafeSenderService")
	ctx, span := tr.Start(ctx, "Add", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	norm, err := safesender.ValidatePattern(pattern)
	if err != nil {
		return nil, err
	}
	out, err := s.Repo.CreateSafeSender(ctx, s.DB, userID, norm)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrDuplicateSafeSender
	}
	return out, err
}

// List returns all patterns of userID, newest first.
func (s *SafeSenderService) List(ctx context.Context, userID string) ([]domain.SafeSender, error) {
	items, err := s.Repo.ListSafeSenders(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.SafeSender{}
	}
	return items, nil
}

// Patterns returns the bare pattern strings of userID.
func (s *SafeSenderService) Patterns(ctx context.Context, userID string) ([]string, error) {
	items, err := s.Repo.ListSafeSenders(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.EmailAddress)
	}
	return out, nil
}

// Count returns how many patterns userID has.
func (s *SafeSenderService) Count(ctx context.Context, userID string) (int64, error) {
	return s.Repo.CountSafeSenders(ctx, s.DB, userID)
}

// Remove deletes a pattern owned by userID.
func (s *SafeSenderService) Remove(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/SafeSenderService")
	ctx, span := tr.Start(ctx, "Remove", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("safe_sender.id", id),
	))
	defer span.End()

	err := s.Repo.DeleteSafeSender(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSafeSenderNotFound
	}
	return err
}
