// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for SafeSender.
//
// Error semantics:
//   - CreateSafeSender returns ErrDuplicate when the (user, pattern) pair
//     already exists.
//   - DeleteSafeSender returns ErrNotFound when no row owned by the user
//     matches the id.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// CreateSafeSender inserts a pattern for userID. The pattern must already be
// normalized by the caller.
func CreateSafeSender(ctx context.Context, db *gorm.DB, userID, pattern string) (*domain.SafeSender, error) {
	s := &domain.SafeSender{
		ID:           uuid.NewString(),
		UserID:       userID,
		EmailAddress: pattern,
		AddedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// ListSafeSenders returns the user's patterns, most recently added first.
func ListSafeSenders(ctx context.Context, db *gorm.DB, userID string) ([]domain.SafeSender, error) {
	var out []domain.SafeSender
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("added_at desc").
		Find(&out).Error
	return out, err
}

// CountSafeSenders returns how many patterns userID has configured.
func CountSafeSenders(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.SafeSender{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// DeleteSafeSender removes the pattern identified by id if userID owns it.
func DeleteSafeSender(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.SafeSender{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
