package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		GmailToken{}.TableName():    "gmail_tokens",
		SafeSender{}.TableName():    "safe_senders",
		UserSettings{}.TableName():  "user_settings",
		RateWindow{}.TableName():    "rate_limit_tracking",
		EmailHistory{}.TableName():  "email_history",
		ActionHistory{}.TableName(): "action_history",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndConstraints(t *testing.T) {
	db := newDomainDB(t)

	all := []any{&GmailToken{}, &SafeSender{}, &UserSettings{}, &RateWindow{}, &EmailHistory{}, &ActionHistory{}}
	if err := db.AutoMigrate(all...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range all {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&SafeSender{}, "ux_safe_sender_user_pattern") {
		t.Fatalf("expected unique index ux_safe_sender_user_pattern on safe_senders")
	}
	if !m.HasIndex(&RateWindow{}, "idx_rate_user_window") {
		t.Fatalf("expected index idx_rate_user_window on rate_limit_tracking")
	}

	now := time.Now().UTC()

	// Safe sender uniqueness per user.
	if err := db.Create(&SafeSender{ID: "s1", UserID: "u1", EmailAddress: "*@bank.com", AddedAt: now}).Error; err != nil {
		t.Fatalf("insert safe sender: %v", err)
	}
	if err := db.Create(&SafeSender{ID: "s2", UserID: "u1", EmailAddress: "*@bank.com", AddedAt: now}).Error; err == nil {
		t.Fatalf("expected duplicate safe sender to be rejected")
	}
	if err := db.Create(&SafeSender{ID: "s3", UserID: "u2", EmailAddress: "*@bank.com", AddedAt: now}).Error; err != nil {
		t.Fatalf("same pattern for another user should be allowed: %v", err)
	}

	// Email history action check constraint.
	bad := &EmailHistory{ID: "h1", UserID: "u1", EmailID: "m1", Action: "explode", ActionType: ActionTypeManual, CreatedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown action")
	}
	good := &EmailHistory{ID: "h2", UserID: "u1", EmailID: "m1", Action: ActionArchive, ActionType: ActionTypeAutomated, CreatedAt: now}
	if err := db.Create(good).Error; err != nil {
		t.Fatalf("insert history: %v", err)
	}

	// Action history status check constraint.
	job := &ActionHistory{ID: "a1", UserID: "u1", ActionType: "super_delete", SuperAction: "delete_old", Status: "exploded", CanUndoUntil: now}
	if err := db.Create(job).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown status")
	}
	job.Status = StatusProcessing
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("insert job: %v", err)
	}
	var got ActionHistory
	if err := db.First(&got, "id = ?", "a1").Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.AffectedEmails != "[]" || got.FailedEmails != "[]" {
		t.Fatalf("expected empty JSON array defaults, got %q / %q", got.AffectedEmails, got.FailedEmails)
	}

	// Settings defaults.
	s := DefaultUserSettings("u1")
	s.TrainingModeActive = false
	s.DaysLimit = 0
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("insert settings: %v", err)
	}
	var gotS UserSettings
	if err := db.First(&gotS, "user_id = ?", "u1").Error; err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if gotS.TrainingModeActive || gotS.DaysLimit != 0 || !gotS.SafeSendersRequired {
		t.Fatalf("zero values must persist as written: %+v", gotS)
	}
}
