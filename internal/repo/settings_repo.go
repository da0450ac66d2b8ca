package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

// GetOrCreateSettings returns the user's settings row, inserting the defaults
// when none exists yet.
func GetOrCreateSettings(ctx context.Context, db *gorm.DB, userID string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	s = domain.DefaultUserSettings(userID)
	if err := db.WithContext(ctx).Create(&s).Error; err != nil {
		// Lost a race with a concurrent first read.
		if isUniqueViolation(err) {
			var again domain.UserSettings
			if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&again).Error; err != nil {
				return nil, err
			}
			return &again, nil
		}
		return nil, err
	}
	return &s, nil
}

// SaveSettings persists every column of s, zero values included.
func SaveSettings(ctx context.Context, db *gorm.DB, s *domain.UserSettings) error {
	s.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.UserSettings{}).
		Where("user_id = ?", s.UserID).
		Select("safe_senders_required", "training_mode_active", "successful_actions_count", "days_limit", "updated_at").
		Updates(s).Error
}
