package ratelimit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/repo"
)

// GormStore keeps rate windows in the rate_limit_tracking table.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore returns a WindowStore backed by db.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{DB: db} }

// ActiveWindow returns the window containing now, or ErrNoWindow.
func (s *GormStore) ActiveWindow(ctx context.Context, userID, actionType string, now time.Time) (*domain.RateWindow, error) {
	w, err := repo.ActiveRateWindow(ctx, s.DB, userID, actionType, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoWindow
	}
	return w, err
}

// OpenWindow starts a window of length d at now.
func (s *GormStore) OpenWindow(ctx context.Context, userID, actionType string, now time.Time, d time.Duration) (*domain.RateWindow, error) {
	return repo.CreateRateWindow(ctx, s.DB, userID, actionType, now, d)
}

// AddActions increments the window counter.
func (s *GormStore) AddActions(ctx context.Context, windowID string, n int) error {
	return repo.AddRateWindowActions(ctx, s.DB, windowID, n)
}
