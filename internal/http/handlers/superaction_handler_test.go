package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/services"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

func decodeSuper(t *testing.T, body []byte) SuperActionResponse {
	t.Helper()
	var out SuperActionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return out
}

func TestExecuteSuperAction_Success(t *testing.T) {
	var got services.SuperActionRequest
	var gotUser string
	r := newTestRouter(t, testServices{super: stubSuper{
		execute: func(_ context.Context, s token.Session, req services.SuperActionRequest) (*services.SuperActionResult, error) {
			got, gotUser = req, s.UserID
			return &services.SuperActionResult{
				ActionID:       "job-1",
				Status:         domain.StatusPartiallyFailed,
				ProcessedCount: 1,
				FailedCount:    1,
				FailedIDs:      []string{"m2"},
				Message:        "Successfully processed 1 emails (1 failed)",
			}, nil
		},
	}})

	body := map[string]any{
		"action":           "delete_by_sender",
		"selectedEmailIds": []string{"m1"},
		"allEmails": []map[string]any{
			{"id": "m1", "threadId": "t1", "from": "News <news@shop.example>", "date": "Mon, 02 Jan 2006 15:04:05 -0700"},
			{"id": "m2", "from": "news@shop.example", "date": "garbage"},
		},
	}
	w := doReq(t, r, http.MethodPost, "/super-actions", body, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	if gotUser != "u1" {
		t.Fatalf("want session user u1, got %q", gotUser)
	}
	if got.Action != services.SuperDeleteBySender || len(got.AllEmails) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.AllEmails[0].Date.IsZero() {
		t.Fatalf("expected parsed date for m1")
	}
	if !got.AllEmails[1].Date.IsZero() {
		t.Fatalf("expected zero date for unparsable header, got %v", got.AllEmails[1].Date)
	}

	resp := decodeSuper(t, w.Body.Bytes())
	if !resp.Success || resp.ActionID != "job-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ProcessedCount == nil || *resp.ProcessedCount != 1 || resp.FailedCount == nil || *resp.FailedCount != 1 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if diff := cmp.Diff([]string{"m2"}, resp.FailedIDs); diff != "" {
		t.Fatalf("failed ids mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteSuperAction_Errors(t *testing.T) {
	cases := []struct {
		name    string
		body    any
		err     error
		status  int
		message string
	}{
		{"bad body", "{", nil, http.StatusBadRequest, "Invalid request body"},
		{"safe senders", map[string]any{"action": "delete_old"}, services.ErrInsufficientSafeSenders, http.StatusForbidden, "You need at least 5 safe senders to use Super Actions"},
		{"invalid action", map[string]any{"action": "nuke"}, services.ErrInvalidAction, http.StatusBadRequest, "Invalid action type"},
		{"invalid days", map[string]any{"action": "delete_old", "days": -1}, services.ErrInvalidDays, http.StatusBadRequest, "days must be a number greater than or equal to zero"},
		{"no token", map[string]any{"action": "delete_old"}, token.ErrNoGmailConnection, http.StatusUnauthorized, "No Gmail access token"},
		{"refresh failed", map[string]any{"action": "delete_old"}, token.ErrNoRefreshToken, http.StatusUnauthorized, "Failed to refresh Gmail access token"},
		{"provider 401", map[string]any{"action": "delete_old"}, gmail.ErrUnauthorized, http.StatusUnauthorized, "Failed to refresh Gmail access token"},
		{"config", map[string]any{"action": "delete_old"}, token.ErrMissingOAuthConfig, http.StatusInternalServerError, "Google OAuth client is not configured"},
		{"other", map[string]any{"action": "delete_old"}, errors.New("db down"), http.StatusInternalServerError, "Failed to execute super action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, testServices{super: stubSuper{
				execute: func(context.Context, token.Session, services.SuperActionRequest) (*services.SuperActionResult, error) {
					if tc.err == nil {
						t.Fatalf("service must not be called")
					}
					return nil, tc.err
				},
				status: func(context.Context, string) (*services.SuperActionStatus, error) {
					return &services.SuperActionStatus{RequiredCount: 5}, nil
				},
			}})
			w := doReq(t, r, http.MethodPost, "/super-actions", tc.body, asUser("u1"))
			if w.Code != tc.status {
				t.Fatalf("want %d, got %d (%s)", tc.status, w.Code, w.Body.String())
			}
			resp := decodeSuper(t, w.Body.Bytes())
			if resp.Success || resp.Error != tc.message {
				t.Fatalf("want error %q, got %+v", tc.message, resp)
			}
		})
	}
}

func TestExecuteSuperAction_IdempotentReplay(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()

	job := &domain.ActionHistory{
		UserID:         "u1",
		ActionType:     services.JobSuperDelete,
		SuperAction:    services.SuperDeleteOld,
		AffectedEmails: `["a","b","c"]`,
		FailedEmails:   `["c"]`,
		AffectedCount:  3,
		ProcessedCount: 2,
		FailedCount:    1,
		Status:         domain.StatusPartiallyFailed,
		CanUndoUntil:   time.Now().Add(time.Hour),
	}
	if err := repo.CreateActionHistory(ctx, db, job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "/super-actions", "key-1", job.ID, http.StatusOK, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	// Execute must not run on replay; the zero-value service would panic.
	svc := &services.SuperActionService{DB: db}
	r := newTestRouter(t, testServices{super: svc, idem: db})

	headers := asUser("u1")
	headers[middleware.HeaderIdempotencyKey] = "key-1"
	w := doReq(t, r, http.MethodPost, "/super-actions", map[string]any{"action": "delete_old"}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header")
	}
	resp := decodeSuper(t, w.Body.Bytes())
	if resp.ActionID != job.ID || *resp.ProcessedCount != 2 || *resp.FailedCount != 1 {
		t.Fatalf("unexpected replay: %+v", resp)
	}
	if diff := cmp.Diff([]string{"c"}, resp.FailedIDs); diff != "" {
		t.Fatalf("failed ids mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteSuperAction_IdempotencyKeyRunsOnce(t *testing.T) {
	db := newHandlerDB(t)
	var calls int32
	r := newTestRouter(t, testServices{idem: db, super: stubSuper{
		execute: func(context.Context, token.Session, services.SuperActionRequest) (*services.SuperActionResult, error) {
			atomic.AddInt32(&calls, 1)
			return &services.SuperActionResult{
				Status:   domain.StatusCompleted,
				HeldBack: 4,
				Message:  "No emails to process (4 older emails are held back by training mode)",
			}, nil
		},
	}})

	headers := asUser("u1")
	headers[middleware.HeaderIdempotencyKey] = "key-2"
	body := map[string]any{"action": "delete_old", "days": 30}

	first := doReq(t, r, http.MethodPost, "/super-actions", body, headers)
	if first.Code != http.StatusOK || first.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first: %d %v (%s)", first.Code, first.Header(), first.Body.String())
	}
	second := doReq(t, r, http.MethodPost, "/super-actions", body, headers)
	if second.Code != http.StatusOK || second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second: %d %v (%s)", second.Code, second.Header(), second.Body.String())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("execute ran %d times, want 1", n)
	}
	if diff := cmp.Diff(decodeSuper(t, first.Body.Bytes()), decodeSuper(t, second.Body.Bytes())); diff != "" {
		t.Fatalf("replay differs (-first +second):\n%s", diff)
	}
	if resp := decodeSuper(t, second.Body.Bytes()); resp.HeldBack != 4 || resp.ActionID != "" {
		t.Fatalf("held-back result not replayed: %+v", resp)
	}

	// A different user may reuse the key.
	other := asUser("u2")
	other[middleware.HeaderIdempotencyKey] = "key-2"
	if w := doReq(t, r, http.MethodPost, "/super-actions", body, other); w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("other user: %d %v", w.Code, w.Header())
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("execute ran %d times, want 2", n)
	}
}

func TestExecuteSuperAction_ConcurrentRetryGetsConflict(t *testing.T) {
	db := newHandlerDB(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	r := newTestRouter(t, testServices{idem: db, super: stubSuper{
		execute: func(context.Context, token.Session, services.SuperActionRequest) (*services.SuperActionResult, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-release
			}
			return &services.SuperActionResult{ActionID: "job-9", ProcessedCount: 3, FailedCount: 0, Message: "Successfully processed 3 emails"}, nil
		},
	}})

	headers := asUser("u1")
	headers[middleware.HeaderIdempotencyKey] = "key-3"
	body := `{"action":"delete_old","days":7}`

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- doReq(t, r, http.MethodPost, "/super-actions", body, headers) }()
	<-started

	w := doReq(t, r, http.MethodPost, "/super-actions", body, headers)
	if w.Code != http.StatusConflict {
		t.Fatalf("retry while running: want 409, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeSuper(t, w.Body.Bytes()); resp.Success || resp.Error != "A request with this Idempotency-Key is still in progress" {
		t.Fatalf("unexpected conflict body: %+v", resp)
	}

	close(release)
	if first := <-done; first.Code != http.StatusOK {
		t.Fatalf("first: want 200, got %d", first.Code)
	}
	replay := doReq(t, r, http.MethodPost, "/super-actions", body, headers)
	if replay.Code != http.StatusOK || decodeSuper(t, replay.Body.Bytes()).ActionID != "job-9" {
		t.Fatalf("replay after finish: %d %s", replay.Code, replay.Body.String())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("execute ran %d times, want 1", n)
	}
}

func TestExecuteSuperAction_FailureReleasesKey(t *testing.T) {
	db := newHandlerDB(t)
	var calls int32
	r := newTestRouter(t, testServices{idem: db, super: stubSuper{
		execute: func(context.Context, token.Session, services.SuperActionRequest) (*services.SuperActionResult, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, token.ErrNoGmailConnection
			}
			return &services.SuperActionResult{ActionID: "job-2", ProcessedCount: 1}, nil
		},
	}})

	headers := asUser("u1")
	headers[middleware.HeaderIdempotencyKey] = "key-4"
	body := map[string]any{"action": "delete_old", "days": 1}

	if w := doReq(t, r, http.MethodPost, "/super-actions", body, headers); w.Code != http.StatusUnauthorized {
		t.Fatalf("first: want 401, got %d", w.Code)
	}
	if _, err := repo.GetIdempotency(context.Background(), db, "u1", "/super-actions", "key-4", time.Now().UTC()); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("reservation must be released, got %v", err)
	}
	w := doReq(t, r, http.MethodPost, "/super-actions", body, headers)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("retry: %d %v", w.Code, w.Header())
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("execute ran %d times, want 2", n)
	}
}

func TestExecuteSuperAction_ReplayWithoutStoredResult(t *testing.T) {
	db := newHandlerDB(t)
	if _, err := repo.CreateIdempotency(context.Background(), db, "u1", "/super-actions", "key-5", "", http.StatusOK, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}
	r := newTestRouter(t, testServices{idem: db, super: stubSuper{
		execute: func(context.Context, token.Session, services.SuperActionRequest) (*services.SuperActionResult, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}})

	headers := asUser("u1")
	headers[middleware.HeaderIdempotencyKey] = "key-5"
	w := doReq(t, r, http.MethodPost, "/super-actions", map[string]any{"action": "delete_old"}, headers)
	if w.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeSuper(t, w.Body.Bytes()); resp.Success || resp.ProcessedCount != nil {
		t.Fatalf("must not pretend nothing was processed: %+v", resp)
	}
}

func TestSuperActionStatus(t *testing.T) {
	r := newTestRouter(t, testServices{super: stubSuper{
		status: func(_ context.Context, userID string) (*services.SuperActionStatus, error) {
			if userID != "u1" {
				return nil, fmt.Errorf("unexpected user %s", userID)
			}
			return &services.SuperActionStatus{CanUse: true, SafeSendersCount: 4, RequiredCount: 3, TrainingModeActive: true, DaysLimit: 7}, nil
		},
	}})
	w := doReq(t, r, http.MethodGet, "/super-actions/status", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	var st services.SuperActionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.CanUse || st.SafeSendersCount != 4 || st.DaysLimit != 7 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestListSuperActions_PaginationAndETag(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		job := &domain.ActionHistory{
			UserID:       "u1",
			ActionType:   services.JobSuperArchive,
			SuperAction:  services.SuperArchiveOld,
			Status:       domain.StatusCompleted,
			CanUndoUntil: time.Now().Add(time.Hour),
			CreatedAt:    time.Now().Add(time.Duration(i) * time.Second).UTC(),
		}
		if err := repo.CreateActionHistory(ctx, db, job); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	r := newTestRouter(t, testServices{hist: &services.HistoryService{DB: db}})

	w := doReq(t, r, http.MethodGet, "/super-actions/history?page=1&page_size=2", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	var out ListActionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Actions) != 2 || out.Pagination.Total != 3 || out.Pagination.TotalPages != 2 || !out.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", out.Pagination)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}

	headers := asUser("u1")
	headers["If-None-Match"] = etag
	w = doReq(t, r, http.MethodGet, "/super-actions/history?page=1&page_size=2", nil, headers)
	if w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	// Another user sees an empty page.
	w = doReq(t, r, http.MethodGet, "/super-actions/history", nil, asUser("u2"))
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Actions) != 0 || out.Pagination.Total != 0 {
		t.Fatalf("expected no rows for u2, got %+v", out)
	}
}

func TestUndoSuperAction(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", services.ErrActionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"expired", services.ErrUndoExpired, http.StatusGone, ErrCodeUndoExpired},
		{"not undoable", services.ErrNotUndoable, http.StatusConflict, ErrCodeNotUndoable},
		{"no token", token.ErrNoGmailConnection, http.StatusUnauthorized, ErrCodeGmailNotConnected},
		{"other", gorm.ErrInvalidDB, http.StatusInternalServerError, ErrCodeActionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, testServices{super: stubSuper{
				undo: func(context.Context, token.Session, string) (*services.UndoResult, error) { return nil, tc.err },
			}})
			w := doReq(t, r, http.MethodPost, "/super-actions/job-1/undo", nil, asUser("u1"))
			if w.Code != tc.status {
				t.Fatalf("want %d, got %d (%s)", tc.status, w.Code, w.Body.String())
			}
			if got := decodeErr(t, w).Code; got != tc.code {
				t.Fatalf("want code %q, got %q", tc.code, got)
			}
		})
	}

	t.Run("ok", func(t *testing.T) {
		var gotID string
		r := newTestRouter(t, testServices{super: stubSuper{
			undo: func(_ context.Context, _ token.Session, id string) (*services.UndoResult, error) {
				gotID = id
				return &services.UndoResult{ActionID: id, RestoredCount: 2, FailedIDs: []string{}, Message: "Restored 2 emails"}, nil
			},
		}})
		w := doReq(t, r, http.MethodPost, "/super-actions/job-9/undo", nil, asUser("u1"))
		if w.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", w.Code)
		}
		if gotID != "job-9" {
			t.Fatalf("want id job-9, got %q", gotID)
		}
		var res services.UndoResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.RestoredCount != 2 {
			t.Fatalf("unexpected result: %+v", res)
		}
	})
}
