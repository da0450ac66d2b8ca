package repo

import (
	"context"
	"testing"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

func TestGetOrCreateSettings_DefaultsThenSave(t *testing.T) {
	db := newTestDB(t, &domain.UserSettings{})
	ctx := context.Background()

	s, err := GetOrCreateSettings(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetOrCreateSettings: %v", err)
	}
	if !s.SafeSendersRequired || !s.TrainingModeActive || s.DaysLimit != 30 || s.SuccessfulActionsCount != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	s.TrainingModeActive = false
	s.DaysLimit = 0
	s.SuccessfulActionsCount = 10
	if err := SaveSettings(ctx, db, s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	again, err := GetOrCreateSettings(ctx, db, "u1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.TrainingModeActive || again.DaysLimit != 0 || again.SuccessfulActionsCount != 10 {
		t.Fatalf("zero values were not persisted: %+v", again)
	}
}
