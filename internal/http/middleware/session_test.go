package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signSession(t *testing.T, claims SessionClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(sub string) SessionClaims {
	return SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "auth.example",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
}

func sessionEngine(opts SessionOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Session(opts))
	r.GET("/me", func(c *gin.Context) {
		s, ok := SessionFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": s.UserID, "pt": s.ProviderToken, "prt": s.ProviderRefreshToken, "ctx": c.GetString("userID")})
	})
	return r
}

func TestSession_Cases(t *testing.T) {
	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	withProvider := validClaims("u2")
	withProvider.ProviderToken = "ya29.claim"

	cases := []struct {
		name     string
		opts     SessionOptions
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{
			name:     "valid jwt",
			opts:     SessionOptions{Secret: testSecret, Issuer: "auth.example"},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, validClaims("u1"), jwt.SigningMethodHS256, []byte(testSecret))},
			wantCode: http.StatusOK,
			wantBody: `"user":"u1"`,
		},
		{
			name:     "provider token claim",
			opts:     SessionOptions{Secret: testSecret},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, withProvider, jwt.SigningMethodHS256, []byte(testSecret))},
			wantCode: http.StatusOK,
			wantBody: `"pt":"ya29.claim"`,
		},
		{
			name:     "provider headers override",
			opts:     SessionOptions{AllowHeader: true},
			headers:  map[string]string{HeaderUserID: "u3", HeaderProviderToken: "at", HeaderProviderRefreshToken: "rt"},
			wantCode: http.StatusOK,
			wantBody: `"prt":"rt"`,
		},
		{
			name:     "expired jwt",
			opts:     SessionOptions{Secret: testSecret},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, expired, jwt.SigningMethodHS256, []byte(testSecret))},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			opts:     SessionOptions{Secret: testSecret},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, validClaims("u1"), jwt.SigningMethodHS256, []byte("other"))},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong issuer",
			opts:     SessionOptions{Secret: testSecret, Issuer: "someone.else"},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, validClaims("u1"), jwt.SigningMethodHS256, []byte(testSecret))},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing subject",
			opts:     SessionOptions{Secret: testSecret},
			headers:  map[string]string{"Authorization": "Bearer " + signSession(t, validClaims(""), jwt.SigningMethodHS256, []byte(testSecret))},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "header ignored when jwt required",
			opts:     SessionOptions{Secret: testSecret, AllowHeader: false},
			headers:  map[string]string{HeaderUserID: "u1"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "header ignored once a secret is set",
			opts:     SessionOptions{Secret: testSecret, AllowHeader: true},
			headers:  map[string]string{HeaderUserID: "victim", HeaderProviderToken: "ya29.stolen"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "header ignored next to a bad bearer",
			opts:     SessionOptions{Secret: testSecret, AllowHeader: true},
			headers:  map[string]string{HeaderUserID: "victim", "Authorization": "Bearer not-a-jwt"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no credentials",
			opts:     SessionOptions{AllowHeader: true},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := sessionEngine(tc.opts)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Fatalf("body %s does not contain %s", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestSession_SetsUserIDForDownstream(t *testing.T) {
	r := sessionEngine(SessionOptions{AllowHeader: true})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "u9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"ctx":"u9"`) {
		t.Fatalf("userID not propagated: %s", w.Body.String())
	}
}

func TestBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range cases {
		if got := bearer(in); got != want {
			t.Fatalf("bearer(%q) = %q, want %q", in, got, want)
		}
	}
}
