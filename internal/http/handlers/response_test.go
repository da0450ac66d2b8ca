package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
)

func TestFail_EnvelopeAndLogLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	lg := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) { c.Set("logger", &lg); c.Next() })
	r.GET("/upstream", func(c *gin.Context) {
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "gmail unavailable")
	})
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "safe sender not found")
	})

	cases := []struct {
		path, code, level string
		status            int
	}{
		{"/upstream", ErrCodeUpstream, "error", http.StatusBadGateway},
		{"/missing", ErrCodeNotFound, "debug", http.StatusNotFound},
	}
	for _, tc := range cases {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set(middleware.HeaderRequestID, "rid-"+strings.Repeat("9", 8))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Fatalf("%s: status = %d", tc.path, w.Code)
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: json: %v", tc.path, err)
		}
		if er.RequestID != "rid-99999999" || er.Code != tc.code {
			t.Fatalf("%s: envelope = %+v", tc.path, er)
		}
		if !strings.Contains(buf.String(), `"level":"`+tc.level+`"`) {
			t.Fatalf("%s: want %s log, got %s", tc.path, tc.level, buf.String())
		}
	}
}

func TestNotModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const etag = `W/"safe-senders:u1:3:42"`

	r := gin.New()
	r.GET("/list", func(c *gin.Context) {
		if notModified(c, etag) {
			return
		}
		ok(c, http.StatusOK, gin.H{"count": 3})
	})
	r.DELETE("/gone", noContent)

	cases := []struct {
		inm  string
		want int
	}{
		{"", http.StatusOK},
		{`W/"stale"`, http.StatusOK},
		{etag, http.StatusNotModified},
		{`W/"other", ` + etag, http.StatusNotModified},
		{"*", http.StatusNotModified},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/list", nil)
		if tc.inm != "" {
			req.Header.Set("If-None-Match", tc.inm)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("If-None-Match %q: status = %d, want %d", tc.inm, w.Code, tc.want)
		}
		if w.Header().Get("ETag") != etag {
			t.Fatalf("ETag missing for %q", tc.inm)
		}
		if tc.want == http.StatusNotModified && w.Body.Len() != 0 {
			t.Fatalf("304 must have no body")
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}
