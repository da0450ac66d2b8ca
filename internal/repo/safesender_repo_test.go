package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/mailsweep-backend/internal/domain"
)

func TestSafeSenders_CreateListCountDelete(t *testing.T) {
	db := newTestDB(t, &domain.SafeSender{})
	ctx := context.Background()

	a, err := CreateSafeSender(ctx, db, "u1", "boss@work.com")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if a.ID == "" || a.UserID != "u1" || a.AddedAt.IsZero() {
		t.Fatalf("unexpected row: %+v", a)
	}
	// Make ordering deterministic.
	db.Model(&domain.SafeSender{}).Where("id = ?", a.ID).Update("added_at", time.Now().UTC().Add(-time.Hour))

	b, err := CreateSafeSender(ctx, db, "u1", "*@bank.com")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := CreateSafeSender(ctx, db, "u2", "*@bank.com"); err != nil {
		t.Fatalf("other user same pattern: %v", err)
	}
	if _, err := CreateSafeSender(ctx, db, "u1", "*@bank.com"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	list, err := ListSafeSenders(ctx, db, "u1")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v len=%d", err, len(list))
	}
	if list[0].ID != b.ID {
		t.Fatalf("expected newest first, got %q", list[0].EmailAddress)
	}

	n, err := CountSafeSenders(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}

	if err := DeleteSafeSender(ctx, db, a.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting another user's row must be ErrNotFound, got %v", err)
	}
	if err := DeleteSafeSender(ctx, db, a.ID, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := CountSafeSenders(ctx, db, "u1"); n != 1 {
		t.Fatalf("expected 1 after delete, got %d", n)
	}
}

func TestSafeSendersStats(t *testing.T) {
	ctx := context.Background()

	if _, _, err := SafeSendersStats(ctx, newTestDB(t), "u1"); err == nil {
		t.Fatalf("expected error without table")
	}

	db := newTestDB(t, &domain.SafeSender{})
	n, ts, err := SafeSendersStats(ctx, db, "u1")
	if err != nil || n != 0 || ts != nil {
		t.Fatalf("empty stats: n=%d ts=%v err=%v", n, ts, err)
	}

	if _, err := CreateSafeSender(ctx, db, "u1", "a@b.com"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, ts, err = SafeSendersStats(ctx, db, "u1")
	if err != nil || n != 1 || ts == nil || ts.IsZero() {
		t.Fatalf("stats: n=%d ts=%v err=%v", n, ts, err)
	}
}
