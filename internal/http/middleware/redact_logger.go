package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	redacted = "[REDACTED]"

	// maxQueryLogLength caps the logged query string.
	maxQueryLogLength = 1024
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskParams are query parameters whose values are always masked, in
	// addition to the OAuth ones (access_token, refresh_token, id_token, code).
	MaskParams []string
}

// Google OAuth material and session JWTs that can leak through query strings
// or custom headers. Mailbox addresses keep their domain so safe sender
// problems stay debuggable.
var (
	googleAccessRE  = regexp.MustCompile(`ya29\.[A-Za-z0-9_\-\.]+`)
	googleRefreshRE = regexp.MustCompile(`1//[A-Za-z0-9_\-]+`)
	jwtRE           = regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
	emailLocalRE    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@([a-z0-9.\-]+\.[a-z]{2,})\b`)
)

// scrub removes provider tokens and the local part of email addresses.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = jwtRE.ReplaceAllString(s, "[REDACTED:jwt]")
	s = googleAccessRE.ReplaceAllString(s, "[REDACTED:access_token]")
	s = googleRefreshRE.ReplaceAllString(s, "[REDACTED:refresh_token]")
	return emailLocalRE.ReplaceAllString(s, "[REDACTED]@$1")
}

// scrubQuery masks sensitive parameters entirely and scrubs the rest.
func scrubQuery(raw string, params map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return truncate(scrub(raw), maxQueryLogLength)
	}
	for k, vv := range vals {
		if _, ok := params[strings.ToLower(k)]; ok {
			vals[k] = []string{redacted}
			continue
		}
		for i := range vv {
			vv[i] = scrub(vv[i])
		}
	}
	// Encode escapes the brackets of the markers; readability wins in logs.
	out, _ := url.QueryUnescape(vals.Encode())
	return truncate(out, maxQueryLogLength)
}

func lowerSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// RedactingLogger writes one access log line per request through the
// request-scoped logger. Bodies are never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"access_token", "refresh_token", "id_token", "code"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = redacted
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}
		query := scrubQuery(c.Request.URL.RawQuery, maskParams)

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", scrub(c.Errors.String()))
		}

		ev.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Bool("replayed", IsReplay(c)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// truncate caps s at max bytes. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
