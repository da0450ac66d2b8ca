// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the rate_limit_tracking counters used
// by the bulk action batcher. Counters are best effort: increments are
// single UPDATE statements without row locking.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// ActiveRateWindow returns the window for (userID, actionType) that contains
// now, or ErrNotFound when the last window has ended.
func ActiveRateWindow(ctx context.Context, db *gorm.DB, userID, actionType string, now time.Time) (*domain.RateWindow, error) {
	var w domain.RateWindow
	err := db.WithContext(ctx).
		Where("user_id = ? AND action_type = ? AND window_start <= ? AND window_end > ?", userID, actionType, now, now).
		Order("window_start desc").
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateRateWindow opens a new window of length d starting at now.
func CreateRateWindow(ctx context.Context, db *gorm.DB, userID, actionType string, now time.Time, d time.Duration) (*domain.RateWindow, error) {
	w := &domain.RateWindow{
		ID:          uuid.NewString(),
		UserID:      userID,
		ActionType:  actionType,
		WindowStart: now.UTC(),
		WindowEnd:   now.UTC().Add(d),
	}
	if err := db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// AddRateWindowActions increments the counter of window id by n.
func AddRateWindowActions(ctx context.Context, db *gorm.DB, id string, n int) error {
	res := db.WithContext(ctx).
		Model(&domain.RateWindow{}).
		Where("id = ?", id).
		Update("actions_count", gorm.Expr("actions_count + ?", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteExpiredRateWindows removes windows that ended before cutoff and
// returns how many rows were deleted.
func DeleteExpiredRateWindows(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("window_end < ?", cutoff).Delete(&domain.RateWindow{})
	return res.RowsAffected, res.Error
}
