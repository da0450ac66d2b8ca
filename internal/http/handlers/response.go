package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint except
// POST /super-actions, which keeps its {success, error} contract.
type ErrorResponse struct {
	// Echo of X-Request-ID for support tickets
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"gmail_not_connected"`
	// Human-readable message
	Message string `json:"message" example:"connect your Gmail account first"`
}

// fail aborts with the error envelope. 5xx are logged at error level and
// 4xx at debug, both through the request logger.
func fail(c *gin.Context, status int, code, msg string) {
	lg := middleware.LoggerFrom(c)
	ev := lg.Debug()
	if status >= http.StatusInternalServerError {
		ev = lg.Error()
	}
	ev.Int("status", status).Str("code", code).Str("message", msg).Msg("api error")

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// notModified sets etag and reports whether If-None-Match already names it,
// in which case a bare 304 has been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || tag == etag {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
