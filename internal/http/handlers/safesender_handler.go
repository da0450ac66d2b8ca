// Safe sender HTTP handlers.
//
//   - GET    /safe-senders        (list, ETag support)
//   - POST   /safe-senders        (add)
//   - DELETE /safe-senders/{id}   (remove)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/services"
)

// AddSafeSenderRequest is the JSON payload for adding a safe sender.
type AddSafeSenderRequest struct {
	// EmailAddress is an address, "*@domain" or "user@*".
	EmailAddress string `json:"email_address" binding:"required,max=320" example:"*@family.example"`
}

// ListSafeSendersResponse wraps the user's safe senders.
type ListSafeSendersResponse struct {
	SafeSenders []domain.SafeSender `json:"safe_senders"`
	Count       int                 `json:"count"`
}

// ListSafeSenders godoc
// @ID          listSafeSenders
// @Summary     List safe senders
// @Description Returns the user's safe sender patterns, newest first. Supports weak ETag via If-None-Match.
// @Tags        SafeSenders
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListSafeSendersResponse
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /safe-senders [get]
func (h *Handlers) ListSafeSenders(c *gin.Context) {
	ctx := c.Request.Context()
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	// ETag pre-check (best effort).
	if svc, isSvc := h.safeSvc.(*services.SafeSenderService); isSvc && svc.DB != nil {
		count, maxTS, err := repo.SafeSendersStats(ctx, svc.DB, sess.UserID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"safe-senders:%s:%d:%d"`, sess.UserID, count, ts)
			if notModified(c, etag) {
				return
			}
		}
	}

	items, err := h.safeSvc.List(ctx, sess.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSafeSendersResponse{SafeSenders: items, Count: len(items)})
}

// AddSafeSender godoc
// @ID          addSafeSender
// @Summary     Add a safe sender
// @Description Adds an address or one-sided wildcard pattern that super actions never touch.
// @Tags        SafeSenders
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.AddSafeSenderRequest  true  "Pattern"
// @Success     201  {object} domain.SafeSender
// @Failure     400  {object} handlers.ErrorResponse "Invalid pattern"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     409  {object} handlers.ErrorResponse "Already on the list"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /safe-senders [post]
func (h *Handlers) AddSafeSender(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	var req AddSafeSenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email_address required")
		return
	}
	s, err := h.safeSvc.Add(c.Request.Context(), sess.UserID, req.EmailAddress)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPattern):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPattern, "use an address, *@domain or name@*")
		case errors.Is(err, services.ErrDuplicateSafeSender):
			fail(c, http.StatusConflict, ErrCodeConflict, "safe sender already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, s)
}

// RemoveSafeSender godoc
// @ID          removeSafeSender
// @Summary     Remove a safe sender
// @Tags        SafeSenders
// @Param       id  path  string  true  "Safe sender ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /safe-senders/{id} [delete]
func (h *Handlers) RemoveSafeSender(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	if err := h.safeSvc.Remove(c.Request.Context(), sess.UserID, c.Param("id")); err != nil {
		if errors.Is(err, services.ErrSafeSenderNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "safe sender not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
