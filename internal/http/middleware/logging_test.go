package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestID_ReuseOrGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name, in string
		reuse    bool
	}{
		{"absent", "", false},
		{"well formed", "trace-0001.abc", true},
		{"too short", "abc", false},
		{"log injection", "abcdefgh\n{\"level\":\"error\"}", false},
		{"too long", strings.Repeat("a", 129), false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.in != "" {
			req.Header.Set(HeaderRequestID, tc.in)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(HeaderRequestID)
		if got != seen {
			t.Fatalf("%s: header %q and context %q differ", tc.name, got, seen)
		}
		if tc.reuse && got != tc.in {
			t.Fatalf("%s: got %q, want reuse of %q", tc.name, got, tc.in)
		}
		if !tc.reuse {
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("%s: want generated uuid, got %q", tc.name, got)
			}
		}
	}
}

func TestLoggerFrom_CarriesRequestAndUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) { bindUser(c, "user-7"); c.Next() })
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Str("action", "delete_by_sender").Msg("service line")
		if userIDFromCtx(c) != "user-7" {
			t.Errorf("userIDFromCtx = %q", userIDFromCtx(c))
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "rid-abcdef12")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := lastLine(t, buf)
	if out["request_id"] != "rid-abcdef12" || out["user_id"] != "user-7" || out["action"] != "delete_by_sender" {
		t.Fatalf("fields missing: %v", out)
	}
}

func TestLoggerFrom_FallbackAndRequestIDFromHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if LoggerFrom(c) == nil {
		t.Fatalf("fallback logger must not be nil")
	}
	c.Set(ctxKeyLogger, "not a logger")
	if LoggerFrom(c) == nil {
		t.Fatalf("wrong type must fall back")
	}
	c.Writer.Header().Set(HeaderRequestID, "from-header")
	if got := RequestIDFrom(c); got != "from-header" {
		t.Fatalf("RequestIDFrom = %q", got)
	}
	if userIDFromCtx(c) != "" {
		t.Fatalf("anonymous context must have no user")
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderRequestID, "rid-panic-01")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["request_id"] != "rid-panic-01" || body["code"] != "internal_error" {
		t.Fatalf("envelope = %v", body)
	}
	out := lastLine(t, buf)
	if out["panic"] != "boom" || out["route"] != "/panic" || out["request_id"] != "rid-panic-01" {
		t.Fatalf("panic log = %v", out)
	}

	// Once the body is written only the status can be forced.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("body rewritten: %q", w.Body.String())
	}
}
