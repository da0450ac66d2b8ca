package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

func TestStoreGmailTokens(t *testing.T) {
	var gotUser string
	var gotTok *oauth2.Token
	r := newTestRouter(t, testServices{tokens: stubTokens{
		store: func(_ context.Context, userID string, tok *oauth2.Token) (token.Entry, error) {
			gotUser, gotTok = userID, tok
			return token.Entry{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
		},
	}})

	before := time.Now()
	w := doReq(t, r, http.MethodPost, "/gmail/tokens", map[string]any{
		"access_token":  " ya29.a ",
		"refresh_token": "1//r",
		"expires_in":    3600,
	}, asUser("u1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d (%s)", w.Code, w.Body.String())
	}
	if gotUser != "u1" || gotTok.AccessToken != "ya29.a" || gotTok.RefreshToken != "1//r" {
		t.Fatalf("unexpected store call: %s %+v", gotUser, gotTok)
	}
	if gotTok.Expiry.Before(before.Add(59*time.Minute)) || gotTok.Expiry.After(time.Now().Add(61*time.Minute)) {
		t.Fatalf("unexpected expiry %v", gotTok.Expiry)
	}
	var out TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken != "" {
		t.Fatalf("store response must not echo the access token")
	}
}

func TestStoreGmailTokens_BadRequest(t *testing.T) {
	r := newTestRouter(t, testServices{tokens: stubTokens{
		store: func(context.Context, string, *oauth2.Token) (token.Entry, error) {
			t.Fatalf("service must not be called")
			return token.Entry{}, nil
		},
	}})
	for _, body := range []any{
		map[string]any{},
		map[string]any{"access_token": "   "},
		map[string]any{"access_token": "a", "expires_in": -5},
	} {
		if w := doReq(t, r, http.MethodPost, "/gmail/tokens", body, asUser("u1")); w.Code != http.StatusBadRequest {
			t.Fatalf("%v: want 400, got %d", body, w.Code)
		}
	}
}

func TestRefreshGmailToken(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no refresh token", token.ErrNoRefreshToken, http.StatusNotFound, ErrCodeNoRefreshToken},
		{"no connection", token.ErrNoGmailConnection, http.StatusNotFound, ErrCodeNoRefreshToken},
		{"config", token.ErrMissingOAuthConfig, http.StatusInternalServerError, ErrCodeConfiguration},
		{"rejected", token.ErrRefreshFailed, http.StatusUnauthorized, ErrCodeTokenRefreshFailed},
		{"other", errors.New("db"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, testServices{tokens: stubTokens{
				refresh: func(context.Context, string) (token.Entry, error) { return token.Entry{}, tc.err },
			}})
			w := doReq(t, r, http.MethodPost, "/gmail/refresh-token", nil, asUser("u1"))
			if w.Code != tc.status {
				t.Fatalf("want %d, got %d", tc.status, w.Code)
			}
			if got := decodeErr(t, w).Code; got != tc.code {
				t.Fatalf("want code %q, got %q", tc.code, got)
			}
		})
	}

	t.Run("ok", func(t *testing.T) {
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		r := newTestRouter(t, testServices{tokens: stubTokens{
			refresh: func(context.Context, string) (token.Entry, error) {
				return token.Entry{AccessToken: "fresh", ExpiresAt: exp}, nil
			},
		}})
		w := doReq(t, r, http.MethodPost, "/gmail/refresh-token", nil, asUser("u1"))
		if w.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", w.Code)
		}
		var out TokenResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.AccessToken != "fresh" || !out.ExpiresAt.Equal(exp) {
			t.Fatalf("unexpected body: %+v", out)
		}
	})
}

func TestGmailProfile(t *testing.T) {
	r := newTestRouter(t, testServices{mail: stubMail{
		profile: func(context.Context, token.Session) (*gmail.Profile, error) {
			return &gmail.Profile{EmailAddress: "me@example.com", MessagesTotal: 10, ThreadsTotal: 4}, nil
		},
	}})
	w := doReq(t, r, http.MethodGet, "/gmail/profile", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var out GmailProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Connected || out.EmailAddress != "me@example.com" || out.MessagesTotal != 10 {
		t.Fatalf("unexpected body: %+v", out)
	}

	r = newTestRouter(t, testServices{mail: stubMail{
		profile: func(context.Context, token.Session) (*gmail.Profile, error) { return nil, token.ErrNoGmailConnection },
	}})
	if w = doReq(t, r, http.MethodGet, "/gmail/profile", nil, asUser("u1")); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}
