package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

func TestRateWindow_Lifecycle(t *testing.T) {
	db := newTestDB(t, &domain.RateWindow{})
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := ActiveRateWindow(ctx, db, "u1", "gmail", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without window, got %v", err)
	}

	w, err := CreateRateWindow(ctx, db, "u1", "gmail", now, time.Minute)
	if err != nil {
		t.Fatalf("CreateRateWindow: %v", err)
	}
	if !w.WindowEnd.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected window end: %v", w.WindowEnd)
	}

	if err := AddRateWindowActions(ctx, db, w.ID, 7); err != nil {
		t.Fatalf("AddRateWindowActions: %v", err)
	}
	if err := AddRateWindowActions(ctx, db, w.ID, 3); err != nil {
		t.Fatalf("AddRateWindowActions: %v", err)
	}
	if err := AddRateWindowActions(ctx, db, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown window, got %v", err)
	}

	active, err := ActiveRateWindow(ctx, db, "u1", "gmail", now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("ActiveRateWindow: %v", err)
	}
	if active.ActionsCount != 10 {
		t.Fatalf("expected 10 actions, got %d", active.ActionsCount)
	}

	// Other action types and users are isolated.
	if _, err := ActiveRateWindow(ctx, db, "u2", "gmail", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}

	// Window is no longer active once it ended.
	if _, err := ActiveRateWindow(ctx, db, "u1", "gmail", now.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after window end, got %v", err)
	}

	n, err := DeleteExpiredRateWindows(ctx, db, now.Add(2*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredRateWindows: n=%d err=%v", n, err)
	}
}
