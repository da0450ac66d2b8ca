// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two
// history tables:
//
//   - email_history: append-only, one row per message per action. Only
//     insert and read helpers exist.
//   - action_history: one row per super action job, inserted as
//     "processing" and finalized once.
//
// Functions:
//
//   - CreateEmailHistory(ctx, db, rows) -> error
//   - ListEmailHistory(ctx, db, userID, limit) -> []domain.EmailHistory, error
//   - CreateActionHistory(ctx, db, job) -> error
//   - GetActionHistory(ctx, db, id, userID) -> *domain.ActionHistory, error
//   - UpdateActionHistory(ctx, db, id, userID, fields) -> error
//   - CountActionHistory / ListActionHistoryPage for pagination
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// emailHistoryInsertBatch bounds the number of rows per INSERT statement.
const emailHistoryInsertBatch = 100

// CreateEmailHistory appends rows in bounded batches. Missing ids and
// timestamps are filled in.
func CreateEmailHistory(ctx context.Context, db *gorm.DB, rows []domain.EmailHistory) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).CreateInBatches(rows, emailHistoryInsertBatch).Error
}

// ListEmailHistory returns up to limit rows for userID, newest first.
func ListEmailHistory(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.EmailHistory, error) {
	var out []domain.EmailHistory
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateActionHistory inserts a job row. ID and CreatedAt are assigned when
// empty.
func CreateActionHistory(ctx context.Context, db *gorm.DB, job *domain.ActionHistory) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(job).Error
}

// GetActionHistory fetches a job by id and owner, or ErrNotFound.
func GetActionHistory(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ActionHistory, error) {
	var job domain.ActionHistory
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateActionHistory applies fields to the job owned by userID. It returns
// ErrNotFound when no row matched.
func UpdateActionHistory(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.ActionHistory{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountActionHistory returns the number of jobs owned by userID.
func CountActionHistory(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ActionHistory{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListActionHistoryPage returns a page of jobs, newest first.
func ListActionHistoryPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ActionHistory, error) {
	var out []domain.ActionHistory
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
