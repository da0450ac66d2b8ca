// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the token store accessor: one
// gmail_tokens row per user, read by the token manager and overwritten on
// every refresh.
//
// Functions:
//
//   - GetGmailToken(ctx, db, userID) -> *domain.GmailToken, error
//     Returns the stored token pair or ErrNotFound.
//
//   - UpsertGmailToken(ctx, db, userID, access, refresh, expiresAt) -> *domain.GmailToken, error
//     Inserts the row or overwrites access token and expiry. A nil refresh
//     token keeps the stored one.
//
//   - DeleteGmailToken(ctx, db, userID) -> error
//     Removes the connection (disconnect).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// GetGmailToken fetches the token row for userID or returns ErrNotFound.
func GetGmailToken(ctx context.Context, db *gorm.DB, userID string) (*domain.GmailToken, error) {
	var t domain.GmailToken
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertGmailToken writes the token pair for userID. When refresh is nil the
// existing refresh token is left untouched, matching providers that omit a
// new refresh token on refresh responses.
func UpsertGmailToken(ctx context.Context, db *gorm.DB, userID, access string, refresh *string, expiresAt time.Time) (*domain.GmailToken, error) {
	now := time.Now().UTC()
	t := &domain.GmailToken{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	cols := []string{"access_token", "expires_at", "updated_at"}
	if refresh != nil {
		cols = append(cols, "refresh_token")
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(t).Error
	if err != nil {
		return nil, err
	}
	return GetGmailToken(ctx, db, userID)
}

// DeleteGmailToken removes the user's token row. Missing rows yield ErrNotFound.
func DeleteGmailToken(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.GmailToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
