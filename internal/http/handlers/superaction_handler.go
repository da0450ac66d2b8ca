// Super action HTTP handlers.
//
// This file exposes the bulk super action endpoints:
//   - POST /super-actions             (execute, Idempotency-Key aware)
//   - GET  /super-actions/status      (gate status)
//   - GET  /super-actions/history     (paginated jobs, ETag support)
//   - POST /super-actions/{id}/undo   (restore within the undo window)
//
// POST /super-actions keeps the dashboard's `{success, ..., error}` body
// instead of the ErrorResponse envelope: the client branches on `success`.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/services"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

//
// DTOs
//

// SuperActionEmail is one message the dashboard has loaded.
type SuperActionEmail struct {
	ID       string `json:"id" example:"18c2f0b5d1a2e3f4"`
	ThreadID string `json:"threadId,omitempty"`
	From     string `json:"from" example:"Deals <deals@shop.example>"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet"`
	// Date accepts RFC 3339, RFC 5322 or epoch milliseconds.
	Date string `json:"date" example:"2025-05-01T10:00:00Z"`
}

// SuperActionRequestBody is the JSON payload of POST /super-actions.
type SuperActionRequestBody struct {
	Action           string             `json:"action" example:"delete_by_sender"`
	SelectedEmailIDs []string           `json:"selectedEmailIds"`
	Days             *int               `json:"days,omitempty" example:"30"`
	AllEmails        []SuperActionEmail `json:"allEmails"`
}

// SuperActionResponse is the body of every POST /super-actions response.
type SuperActionResponse struct {
	Success        bool     `json:"success"`
	ProcessedCount *int     `json:"processedCount,omitempty"`
	FailedCount    *int     `json:"failedCount,omitempty"`
	FailedIDs      []string `json:"failedIds,omitempty"`
	ActionID       string   `json:"actionId,omitempty"`
	HeldBack       int      `json:"heldBack,omitempty"`
	Message        string   `json:"message,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ListActionsResponse wraps a page of super action jobs.
type ListActionsResponse struct {
	Actions    []domain.ActionHistory `json:"actions"`
	Pagination Pagination             `json:"pagination"`
}

func superFail(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().Int("status", status).Str("message", msg).Msg("super action error")
	}
	c.AbortWithStatusJSON(status, SuperActionResponse{Success: false, Error: msg})
}

func intPtr(n int) *int { return &n }

func decodeIDList(raw string) []string {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

//
// Handlers
//

// ExecuteSuperAction godoc
// @ID          executeSuperAction
// @Summary     Run a super action
// @Description Deletes or archives every known message from the selected senders, or older than `days`, skipping safe senders. Partial failure is reported, not retried. A retry with the same Idempotency-Key replays the stored result, or gets 409 while the first request is still running.
// @Tags        SuperActions
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer session JWT"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.SuperActionRequestBody  true  "Super action"
//
// @Success     200  {object}  handlers.SuperActionResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the body replays an earlier request with the same key"
// @Failure     400  {object}  handlers.SuperActionResponse  "Invalid action or body"
// @Failure     401  {object}  handlers.SuperActionResponse  "No session or Gmail authorization failed"
// @Failure     403  {object}  handlers.SuperActionResponse  "Not enough safe senders"
// @Failure     409  {object}  handlers.SuperActionResponse  "Same Idempotency-Key still in progress"
// @Failure     500  {object}  handlers.SuperActionResponse  "Internal error"
// @Router      /super-actions [post]
func (h *Handlers) ExecuteSuperAction(c *gin.Context) {
	ctx := c.Request.Context()
	sess, okSess := currentSession(c)
	if !okSess {
		superFail(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body SuperActionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		superFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var reservation *domain.Idempotency
	if idemKey, _ := middleware.GetIdempotencyKey(c); idemKey != "" && h.idemDB != nil {
		scope := middleware.IdempotencyScope(c)
		rec, err := repo.ReserveIdempotency(ctx, h.idemDB, sess.UserID, scope, idemKey, h.idemTTL)
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			h.replaySuperAction(c, sess.UserID, scope, idemKey)
			return
		case err != nil:
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency reservation failed")
		default:
			reservation = rec
		}
	}

	req := services.SuperActionRequest{
		Action:           strings.TrimSpace(body.Action),
		SelectedEmailIDs: body.SelectedEmailIDs,
		Days:             body.Days,
		AllEmails:        make([]services.EmailItem, 0, len(body.AllEmails)),
	}
	for _, e := range body.AllEmails {
		req.AllEmails = append(req.AllEmails, services.EmailItem{
			ID:       e.ID,
			ThreadID: e.ThreadID,
			From:     e.From,
			Subject:  e.Subject,
			Snippet:  e.Snippet,
			Date:     gmail.ParseDate(e.Date),
		})
	}

	res, err := h.superSvc.Execute(ctx, sess, req)
	if err != nil {
		h.releaseIdempotency(c, reservation)
		switch {
		case errors.Is(err, services.ErrInsufficientSafeSenders):
			required := 3
			if st, serr := h.superSvc.Status(ctx, sess.UserID); serr == nil {
				required = st.RequiredCount
			}
			superFail(c, http.StatusForbidden, fmt.Sprintf("You need at least %d safe senders to use Super Actions", required))
		case errors.Is(err, services.ErrInvalidAction):
			superFail(c, http.StatusBadRequest, "Invalid action type")
		case errors.Is(err, services.ErrInvalidDays):
			superFail(c, http.StatusBadRequest, "days must be a number greater than or equal to zero")
		case errors.Is(err, token.ErrNoGmailConnection):
			superFail(c, http.StatusUnauthorized, "No Gmail access token")
		case errors.Is(err, token.ErrMissingOAuthConfig):
			superFail(c, http.StatusInternalServerError, "Google OAuth client is not configured")
		case errors.Is(err, token.ErrRefreshFailed), errors.Is(err, gmail.ErrUnauthorized):
			superFail(c, http.StatusUnauthorized, "Failed to refresh Gmail access token")
		default:
			superFail(c, http.StatusInternalServerError, "Failed to execute super action")
		}
		return
	}

	resp := SuperActionResponse{
		Success:        true,
		ProcessedCount: intPtr(res.ProcessedCount),
		FailedCount:    intPtr(res.FailedCount),
		FailedIDs:      res.FailedIDs,
		ActionID:       res.ActionID,
		HeldBack:       res.HeldBack,
		Message:        res.Message,
	}
	if reservation != nil {
		stored, _ := json.Marshal(resp)
		if err := repo.CompleteIdempotency(context.WithoutCancel(ctx), h.idemDB, reservation.ID, res.ActionID, http.StatusOK, string(stored)); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency result not stored")
		}
	}
	ok(c, http.StatusOK, resp)
}

// releaseIdempotency frees a reserved key after a failed request so the
// client can retry with it.
func (h *Handlers) releaseIdempotency(c *gin.Context, rec *domain.Idempotency) {
	if rec == nil {
		return
	}
	if err := repo.DeleteIdempotency(context.WithoutCancel(c.Request.Context()), h.idemDB, rec.ID); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency reservation not released")
	}
}

// replaySuperAction answers a request whose Idempotency-Key is already taken:
// with the stored response once the first request finished, or 409 while it
// is still running.
func (h *Handlers) replaySuperAction(c *gin.Context, userID, scope, key string) {
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.idemDB, userID, scope, key, time.Now().UTC())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// Released by a failed first attempt between our insert and this read.
		superFail(c, http.StatusConflict, "Idempotency-Key was just released, retry the request")
		return
	case err != nil:
		superFail(c, http.StatusInternalServerError, "Failed to read idempotency record")
		return
	case rec.Status == domain.IdempotencyPending:
		superFail(c, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
		return
	}

	var resp SuperActionResponse
	switch {
	case rec.Response != "":
		if err := json.Unmarshal([]byte(rec.Response), &resp); err != nil {
			superFail(c, http.StatusInternalServerError, "Stored result is unreadable")
			return
		}
	case rec.ResourceID != "":
		job, err := repo.GetActionHistory(ctx, h.idemDB, rec.ResourceID, userID)
		if err != nil {
			superFail(c, http.StatusConflict, "Stored result for this Idempotency-Key is unavailable")
			return
		}
		var failed []string
		if job.FailedCount > 0 {
			failed = decodeIDList(job.FailedEmails)
		}
		resp = SuperActionResponse{
			Success:        true,
			ProcessedCount: intPtr(job.ProcessedCount),
			FailedCount:    intPtr(job.FailedCount),
			FailedIDs:      failed,
			ActionID:       job.ID,
			Message:        fmt.Sprintf("Successfully processed %d emails (%d failed)", job.ProcessedCount, job.FailedCount),
		}
	default:
		superFail(c, http.StatusConflict, "Stored result for this Idempotency-Key is unavailable")
		return
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusOK, resp)
}

// SuperActionStatus godoc
// @ID          superActionStatus
// @Summary     Super action gate status
// @Description Reports whether super actions are unlocked and the training mode limits.
// @Tags        SuperActions
// @Produce     json
// @Success     200  {object}  services.SuperActionStatus
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /super-actions/status [get]
func (h *Handlers) SuperActionStatus(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	st, err := h.superSvc.Status(c.Request.Context(), sess.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// ListSuperActions godoc
// @ID          listSuperActions
// @Summary     List super action jobs (paginated)
// @Description Returns the user's super action history, newest first. Supports weak ETag via If-None-Match.
// @Tags        SuperActions
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListActionsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /super-actions/history [get]
func (h *Handlers) ListSuperActions(c *gin.Context) {
	ctx := c.Request.Context()
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc, isSvc := h.histSvc.(*services.HistoryService); isSvc && svc.DB != nil {
		count, maxTS, err := repo.ActionHistoryStats(ctx, svc.DB, sess.UserID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"actions:%s:%d:%d:%d:%d"`, sess.UserID, count, ts, page, pageSize)
			if notModified(c, etag) {
				return
			}
		}
	}

	items, total, err := h.histSvc.ListActions(ctx, sess.UserID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListActionsResponse{Actions: items, Pagination: newPagination(page, pageSize, total)})
}

// UndoSuperAction godoc
// @ID          undoSuperAction
// @Summary     Undo a super action
// @Description Restores the messages a job trashed or archived while its undo window is open.
// @Tags        SuperActions
// @Produce     json
//
// @Param       id  path  string  true  "Action ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.UndoResult
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Action not found"
// @Failure     409  {object} handlers.ErrorResponse "Action cannot be undone"
// @Failure     410  {object} handlers.ErrorResponse "Undo window expired"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /super-actions/{id}/undo [post]
func (h *Handlers) UndoSuperAction(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	res, err := h.superSvc.Undo(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrActionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "action not found")
		case errors.Is(err, services.ErrUndoExpired):
			fail(c, http.StatusGone, ErrCodeUndoExpired, "undo window has expired")
		case errors.Is(err, services.ErrNotUndoable):
			fail(c, http.StatusConflict, ErrCodeNotUndoable, "action cannot be undone")
		default:
			failService(c, err, ErrCodeActionFailed)
		}
		return
	}
	ok(c, http.StatusOK, res)
}
