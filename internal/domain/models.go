// Package domain defines the persistence models for Gmail tokens, safe
// senders, user settings, rate windows and the action history tables. These
// types are mapped with GORM and form the core data layer of the backend.
package domain

import (
	"time"
)

// GmailToken stores the OAuth token pair for a user's connected Gmail
// account. There is exactly one row per user; it is created on the first
// OAuth exchange and overwritten on every refresh.
//
// Fields:
//   - UserID: owner of the connection (primary key).
//   - AccessToken: short-lived bearer token used against the Gmail API.
//   - RefreshToken: long-lived token used to mint new access tokens (nullable).
//   - ExpiresAt: instant at which AccessToken stops being valid.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type GmailToken struct {
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);primaryKey"`
	AccessToken  string    `json:"-"             gorm:"type:text;not null"`
	RefreshToken *string   `json:"-"             gorm:"type:text"`
	ExpiresAt    time.Time `json:"expires_at"    gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for GmailToken.
func (GmailToken) TableName() string { return "gmail_tokens" }

// SafeSender is an address or one-sided wildcard pattern ("*@domain",
// "user@*") exempt from bulk destructive actions. Patterns are stored
// lower-cased and are unique per user.
type SafeSender struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;index;uniqueIndex:ux_safe_sender_user_pattern,priority:1"`
	EmailAddress string    `json:"email_address" gorm:"type:varchar(320);not null;uniqueIndex:ux_safe_sender_user_pattern,priority:2"`
	AddedAt      time.Time `json:"added_at"      gorm:"index"`
}

// TableName returns the database table name for SafeSender.
func (SafeSender) TableName() string { return "safe_senders" }

// UserSettings holds the per-user super action policy. Rows are created
// lazily on first read with DefaultUserSettings.
//
// Fields:
//   - SafeSendersRequired: whether the safe sender minimum gates super actions.
//   - TrainingModeActive: restricts super actions to DaysLimit recent days.
//   - SuccessfulActionsCount: completed super actions, drives the unlock.
//   - DaysLimit: training window in days; 0 means unlimited.
type UserSettings struct {
	UserID                 string    `json:"user_id"                  gorm:"type:varchar(64);primaryKey"`
	SafeSendersRequired    bool      `json:"safe_senders_required"    gorm:"not null"`
	TrainingModeActive     bool      `json:"training_mode_active"     gorm:"not null"`
	SuccessfulActionsCount int       `json:"successful_actions_count" gorm:"not null;default:0"`
	DaysLimit              int       `json:"days_limit"               gorm:"not null"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }

// DefaultUserSettings returns the settings a new user starts with: safe
// senders required, training mode on, a 30 day window.
func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{
		UserID:              userID,
		SafeSendersRequired: true,
		TrainingModeActive:  true,
		DaysLimit:           30,
	}
}

// RateWindow is an approximate per-minute action counter. One active window
// exists per (user, action type); a new one is opened when the previous
// window has ended. Updates are best effort and unlocked.
type RateWindow struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_rate_user_window,priority:1"`
	ActionType   string    `json:"action_type"   gorm:"type:varchar(32);not null;index:idx_rate_user_window,priority:2"`
	ActionsCount int       `json:"actions_count" gorm:"not null;default:0"`
	WindowStart  time.Time `json:"window_start"  gorm:"not null"`
	WindowEnd    time.Time `json:"window_end"    gorm:"not null;index:idx_rate_user_window,priority:3"`
}

// TableName returns the database table name for RateWindow.
func (RateWindow) TableName() string { return "rate_limit_tracking" }

// Mailbox actions recorded in EmailHistory.
const (
	ActionDelete      = "delete"
	ActionArchive     = "archive"
	ActionMarkRead    = "mark_read"
	ActionMarkUnread  = "mark_unread"
	ActionApplyRule   = "apply_rule"
	ActionUnsubscribe = "unsubscribe"
)

// Origins of an EmailHistory row.
const (
	ActionTypeManual    = "manual"
	ActionTypeAutomated = "automated"
)

// EmailHistory records one action applied to one message. Rows are
// append-only: the application never updates or deletes them.
type EmailHistory struct {
	ID         string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_email_history_user,priority:1"`
	EmailID    string    `json:"email_id"            gorm:"type:varchar(128);not null;index"`
	ThreadID   *string   `json:"thread_id,omitempty" gorm:"type:varchar(128)"`
	Action     string    `json:"action"              gorm:"type:varchar(16);not null;check:action IN ('delete','archive','mark_read','mark_unread','apply_rule','unsubscribe')"`
	ActionType string    `json:"action_type"         gorm:"type:varchar(16);not null;check:action_type IN ('manual','automated')"`
	Details    string    `json:"details,omitempty"   gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"          gorm:"index:idx_email_history_user,priority:2"`
}

// TableName returns the database table name for EmailHistory.
func (EmailHistory) TableName() string { return "email_history" }

// Bulk job statuses.
const (
	StatusProcessing      = "processing"
	StatusCompleted       = "completed"
	StatusPartiallyFailed = "partially_failed"
	StatusFailed          = "failed"
	StatusUndone          = "undone"
)

// ActionHistory is the record of one super action job. It is inserted with
// StatusProcessing before any provider call and updated once on completion.
//
// Fields:
//   - ActionType: "super_delete" or "super_archive".
//   - SuperAction: the requested kind (e.g. "delete_by_sender").
//   - AffectedEmails / FailedEmails: JSON arrays of message ids.
//   - CanUndoUntil: end of the restore window for the job.
//   - ErrorDetails: JSON object with failure information, if any.
type ActionHistory struct {
	ID             string     `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserID         string     `json:"user_id"                 gorm:"type:varchar(64);not null;index:idx_action_history_user,priority:1"`
	ActionType     string     `json:"action_type"             gorm:"type:varchar(32);not null"`
	SuperAction    string     `json:"super_action"            gorm:"type:varchar(32);not null"`
	AffectedEmails string     `json:"affected_emails"         gorm:"type:text;not null;default:'[]'"`
	FailedEmails   string     `json:"failed_emails"           gorm:"type:text;not null;default:'[]'"`
	AffectedCount  int        `json:"affected_count"          gorm:"not null;default:0"`
	ProcessedCount int        `json:"processed_count"         gorm:"not null;default:0"`
	FailedCount    int        `json:"failed_count"            gorm:"not null;default:0"`
	Status         string     `json:"status"                  gorm:"type:varchar(20);not null;check:status IN ('processing','completed','partially_failed','failed','undone')"`
	CanUndoUntil   time.Time  `json:"can_undo_until"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorDetails   *string    `json:"error_details,omitempty" gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at"              gorm:"index:idx_action_history_user,priority:2"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ActionHistory.
func (ActionHistory) TableName() string { return "action_history" }
