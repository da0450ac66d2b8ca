package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/services"
)

// Minimal shim implementing services.SafeSenderRepo using repo package (like router.go)
type testSafeSenderRepo struct{}

func (testSafeSenderRepo) CreateSafeSender(ctx context.Context, db *gorm.DB, userID, pattern string) (*domain.SafeSender, error) {
	return repo.CreateSafeSender(ctx, db, userID, pattern)
}

func (testSafeSenderRepo) ListSafeSenders(ctx context.Context, db *gorm.DB, userID string) ([]domain.SafeSender, error) {
	return repo.ListSafeSenders(ctx, db, userID)
}

func (testSafeSenderRepo) CountSafeSenders(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSafeSenders(ctx, db, userID)
}

func (testSafeSenderRepo) DeleteSafeSender(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSafeSender(ctx, db, id, userID)
}

func TestSafeSenders_Lifecycle(t *testing.T) {
	db := newHandlerDB(t)
	r := newTestRouter(t, testServices{safe: services.NewSafeSenderService(db, testSafeSenderRepo{})})
	user := asUser("u1")

	w := doReq(t, r, http.MethodPost, "/safe-senders", map[string]string{"email_address": "  Mom@Family.Example "}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created domain.SafeSender
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.EmailAddress != "mom@family.example" {
		t.Fatalf("unexpected safe sender: %+v", created)
	}

	w = doReq(t, r, http.MethodPost, "/safe-senders", map[string]string{"email_address": "mom@family.example"}, user)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: want 409, got %d", w.Code)
	}

	w = doReq(t, r, http.MethodPost, "/safe-senders", map[string]string{"email_address": "*@*"}, user)
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeInvalidPattern {
		t.Fatalf("invalid pattern: want 400 invalid_pattern, got %d %s", w.Code, w.Body.String())
	}

	w = doReq(t, r, http.MethodGet, "/safe-senders", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("list: want 200, got %d", w.Code)
	}
	var list ListSafeSendersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || len(list.SafeSenders) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}
	cond := asUser("u1")
	cond["If-None-Match"] = etag
	if w = doReq(t, r, http.MethodGet, "/safe-senders", nil, cond); w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	// Other users cannot remove it.
	if w = doReq(t, r, http.MethodDelete, "/safe-senders/"+created.ID, nil, asUser("u2")); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: want 404, got %d", w.Code)
	}
	if w = doReq(t, r, http.MethodDelete, "/safe-senders/"+created.ID, nil, user); w.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", w.Code)
	}
	if w = doReq(t, r, http.MethodDelete, "/safe-senders/"+created.ID, nil, user); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", w.Code)
	}

	// The ETag changes once the list changes.
	if w = doReq(t, r, http.MethodGet, "/safe-senders", nil, cond); w.Code != http.StatusOK {
		t.Fatalf("stale ETag: want 200, got %d", w.Code)
	}
}

func TestAddSafeSender_MissingBody(t *testing.T) {
	r := newTestRouter(t, testServices{})
	w := doReq(t, r, http.MethodPost, "/safe-senders", map[string]string{}, asUser("u1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}
