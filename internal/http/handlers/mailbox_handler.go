// Mailbox HTTP handlers.
//
//   - GET  /emails           (inbox listing)
//   - POST /emails/actions   (manual delete/archive/mark read/mark unread)
//   - GET  /history          (email history)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/services"
	"github.com/tbourn/mailsweep-backend/internal/utils"
)

// ListEmailsResponse wraps an inbox listing.
type ListEmailsResponse struct {
	Emails []services.EmailSummary `json:"emails"`
	Count  int                     `json:"count"`
}

// EmailActionRequest is the JSON payload of a manual action.
type EmailActionRequest struct {
	Action string   `json:"action" binding:"required" example:"archive"`
	IDs    []string `json:"ids" binding:"required"`
}

// ListHistoryResponse wraps email history rows.
type ListHistoryResponse struct {
	History []domain.EmailHistory `json:"history"`
}

// ListEmails godoc
// @ID          listEmails
// @Summary     List inbox messages
// @Description Returns recent messages with sender, subject, snippet, date and unread flag.
// @Tags        Emails
// @Produce     json
// @Param       max_results  query  int     false "Maximum messages"  minimum(1) maximum(500) default(50)
// @Param       label_ids    query  string  false "Comma separated label ids"  default(INBOX)
// @Success     200  {object} handlers.ListEmailsResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized or Gmail not connected"
// @Failure     429  {object} handlers.ErrorResponse "Gmail rate limited"
// @Failure     502  {object} handlers.ErrorResponse "Gmail error"
// @Router      /emails [get]
func (h *Handlers) ListEmails(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	maxResults := utils.AtoiDefault(c.Query("max_results"), 0)
	labels := utils.SplitCSV(c.QueryArray("label_ids")...)

	items, err := h.mailSvc.ListEmails(c.Request.Context(), sess, maxResults, labels)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListEmailsResponse{Emails: items, Count: len(items)})
}

// ApplyEmailAction godoc
// @ID          applyEmailAction
// @Summary     Apply a manual action
// @Description Runs delete, archive, mark_read or mark_unread over the given ids through the rate-limited batcher. Failed ids are reported, not retried.
// @Tags        Emails
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.EmailActionRequest  true  "Action"
// @Success     200  {object} services.ActionResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized or Gmail not connected"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /emails/actions [post]
func (h *Handlers) ApplyEmailAction(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	var req EmailActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action and ids required")
		return
	}
	res, err := h.mailSvc.Apply(c.Request.Context(), sess, req.Action, req.IDs)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAction):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be delete, archive, mark_read or mark_unread")
		case errors.Is(err, services.ErrNoEmails):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		case errors.Is(err, services.ErrTooManyEmails):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "too many ids in one request")
		default:
			failService(c, err, ErrCodeActionFailed)
		}
		return
	}
	ok(c, http.StatusOK, res)
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List email history
// @Description Returns the newest email history rows (manual and automated).
// @Tags        History
// @Produce     json
// @Param       limit  query  int  false "Maximum rows"  minimum(1) maximum(500) default(100)
// @Success     200  {object} handlers.ListHistoryResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	rows, err := h.histSvc.List(c.Request.Context(), sess.UserID, utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListHistoryResponse{History: rows})
}
