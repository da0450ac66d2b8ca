// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for POST endpoints.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND key = ? AND expires_at > ?", userID, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ReserveIdempotency claims (userID, scope, key) for a request that is about
// to run, with status domain.IdempotencyPending. An expired row holding the
// key is replaced; a live one yields ErrDuplicate.
func ReserveIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, ttl time.Duration) (*domain.Idempotency, error) {
	var rec *domain.Idempotency
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("user_id = ? AND scope = ? AND key = ? AND expires_at <= ?", userID, scope, key, time.Now().UTC())
		if err := stale.Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		r, err := CreateIdempotency(ctx, tx, userID, scope, key, "", domain.IdempotencyPending, ttl)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency records the outcome of a reserved request.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, id, resourceID string, status int, response string) error {
	res := db.WithContext(ctx).Model(&domain.Idempotency{}).Where("id = ?", id).Updates(map[string]any{
		"resource_id": resourceID,
		"status":      status,
		"response":    response,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdempotency releases a record so the key can be used again.
func DeleteIdempotency(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Idempotency{}).Error
}

// DeleteExpiredIdempotency purges records whose TTL elapsed before now.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
