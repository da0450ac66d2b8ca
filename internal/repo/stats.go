// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// SafeSendersStats returns the number of safe senders for userID and the most
// recent AddedAt among them. maxAddedAt is nil when the user has none.
func SafeSendersStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxAddedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.SafeSender{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		AddedAt time.Time
	}
	if err = q.Select("added_at").Order("added_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.AddedAt, nil
}

// ActionHistoryStats returns the number of jobs for userID and the latest
// UpdatedAt among them, or a nil time when there are none.
func ActionHistoryStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ActionHistory{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
