// Package middleware contains the Gin middleware shared by the HTTP layer:
// correlation ids, redacted access logs, panic recovery, session resolution,
// idempotency keys, per-user rate limiting, Prometheus metrics and security
// headers.
//
// Every request carries a zerolog.Logger in the Gin context. RequestID
// creates it, Session adds the user id, and handlers and services fetch it
// with LoggerFrom so that their lines share request_id and user_id.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderRequestID carries the correlation id in both directions.
	HeaderRequestID = "X-Request-ID"

	ctxKeyRequestID = "requestID"
	ctxKeyUserID    = "userID"
	ctxKeyLogger    = "logger"
)

// Inbound ids are reused only when they look like ids; anything else is
// replaced so log lines cannot be forged through the header.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._\-]{8,128}$`)

// RequestID reuses a well-formed X-Request-ID or generates a UUID, echoes it
// on the response and seeds the request-scoped logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)

		lg := log.With().Str("request_id", rid).Logger()
		c.Set(ctxKeyLogger, &lg)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id set by RequestID, falling back to
// the response header.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.Writer.Header().Get(HeaderRequestID)
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// bindUser records the authenticated user on the context and its logger.
func bindUser(c *gin.Context, userID string) {
	c.Set(ctxKeyUserID, userID)
	lg := LoggerFrom(c).With().Str("user_id", userID).Logger()
	c.Set(ctxKeyLogger, &lg)
}

// userIDFromCtx extracts the user identifier set by Session. Anonymous
// requests yield "".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// abortJSON stops the chain with the API error envelope
// {request_id, code, message}.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

// Recovery turns a panic into a 500 envelope and logs the stack with the
// request's logger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", routeOf(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// routeOf returns the matched route template, or the raw path for 404s.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
