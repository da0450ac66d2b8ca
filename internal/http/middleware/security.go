package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// apiCSP forbids every fetch and framing for JSON responses.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end to end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store on API responses
	EnablePolicy bool          // Permissions-Policy and cross-domain policy
	// DocsPrefix marks the Swagger UI, which needs scripts and may be cached.
	// Requests under it skip the CSP and no-store headers.
	DocsPrefix string
}

// SecurityHeaders hardens responses for browser clients of the dashboard.
// Mailbox listings and tokens must never land in a shared cache, so NoStore
// is expected on in production.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		docs := opt.DocsPrefix != "" && strings.HasPrefix(c.Request.URL.Path, opt.DocsPrefix)
		if !docs {
			h.Set("Content-Security-Policy", apiCSP)
			if opt.NoStore {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			}
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
