// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts the handlers consume, the Handlers
// aggregate, and helpers shared by all endpoints (session lookup, pagination,
// and translation of service errors into HTTP responses).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
	"github.com/tbourn/mailsweep-backend/internal/services"
	"github.com/tbourn/mailsweep-backend/internal/token"
	"github.com/tbourn/mailsweep-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SuperActionService runs and undoes bulk super actions.
type SuperActionService interface {
	// Execute runs a confirmed super action for the session's user.
	Execute(ctx context.Context, sess token.Session, req services.SuperActionRequest) (*services.SuperActionResult, error)
	// Undo restores the messages of a finished job.
	Undo(ctx context.Context, sess token.Session, actionID string) (*services.UndoResult, error)
	// Status reports whether the user may run super actions.
	Status(ctx context.Context, userID string) (*services.SuperActionStatus, error)
}

// SafeSenderService manages the user's safe sender list.
type SafeSenderService interface {
	Add(ctx context.Context, userID, pattern string) (*domain.SafeSender, error)
	List(ctx context.Context, userID string) ([]domain.SafeSender, error)
	Remove(ctx context.Context, userID, id string) error
}

// MailboxService lists messages and applies manual actions.
type MailboxService interface {
	ListEmails(ctx context.Context, sess token.Session, maxResults int, labelIDs []string) ([]services.EmailSummary, error)
	Apply(ctx context.Context, sess token.Session, action string, ids []string) (*services.ActionResult, error)
	Profile(ctx context.Context, sess token.Session) (*gmail.Profile, error)
}

// HistoryService lists the audit tables.
type HistoryService interface {
	List(ctx context.Context, userID string, limit int) ([]domain.EmailHistory, error)
	ListActions(ctx context.Context, userID string, page, pageSize int) ([]domain.ActionHistory, int64, error)
}

// TokenService stores and refreshes the Gmail token pair.
type TokenService interface {
	Store(ctx context.Context, userID string, tok *oauth2.Token) (token.Entry, error)
	Refresh(ctx context.Context, userID string) (token.Entry, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	superSvc SuperActionService
	safeSvc  SafeSenderService
	mailSvc  MailboxService
	histSvc  HistoryService
	tokenSvc TokenService

	idemDB  *gorm.DB
	idemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(superSvc SuperActionService, safeSvc SafeSenderService, mailSvc MailboxService, histSvc HistoryService, tokenSvc TokenService) *Handlers {
	return &Handlers{
		superSvc: superSvc,
		safeSvc:  safeSvc,
		mailSvc:  mailSvc,
		histSvc:  histSvc,
		tokenSvc: tokenSvc,
		idemTTL:  24 * time.Hour,
	}
}

// WithIdempotencyTTL sets how long stored Idempotency-Key results replay.
func (h *Handlers) WithIdempotencyTTL(ttl time.Duration) *Handlers {
	if ttl > 0 {
		h.idemTTL = ttl
	}
	return h
}

// WithIdempotencyStore enables Idempotency-Key reservation and replay on
// POST /super-actions, backed by db.
func (h *Handlers) WithIdempotencyStore(db *gorm.DB) *Handlers {
	h.idemDB = db
	return h
}

// currentSession returns the authenticated session set by middleware.Session.
func currentSession(c *gin.Context) (token.Session, bool) {
	return middleware.SessionFrom(c)
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failService maps provider and token errors shared by the mailbox
// endpoints to the error envelope.
func failService(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, token.ErrNoGmailConnection):
		fail(c, http.StatusUnauthorized, ErrCodeGmailNotConnected, "no Gmail connection")
	case errors.Is(err, token.ErrMissingOAuthConfig):
		fail(c, http.StatusInternalServerError, ErrCodeConfiguration, "Google OAuth client is not configured")
	case errors.Is(err, token.ErrRefreshFailed), errors.Is(err, gmail.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeTokenRefreshFailed, "Gmail authorization failed, reconnect your account")
	case errors.Is(err, gmail.ErrRateLimited):
		if d := gmail.RetryAfter(err); d > 0 {
			c.Header("Retry-After", retryAfterSeconds(d))
		}
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "Gmail rate limit reached, try again shortly")
	case errors.Is(err, gmail.ErrCircuitOpen):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "Gmail is temporarily unavailable")
	case errors.Is(err, gmail.ErrForbidden), errors.Is(err, gmail.ErrUpstream):
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "Gmail request failed")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
