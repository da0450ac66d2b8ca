// Gmail connection HTTP handlers.
//
//   - POST /gmail/tokens          (store the token pair from the OAuth callback)
//   - POST /gmail/refresh-token   (force a refresh)
//   - GET  /gmail/profile         (connection check)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/tbourn/mailsweep-backend/internal/token"
)

// StoreTokensRequest carries the provider tokens obtained by the sign-in flow.
type StoreTokensRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access token lifetime in seconds; 0 assumes one hour.
	ExpiresIn int64 `json:"expires_in" example:"3599"`
}

// TokenResponse reports the current access token and its expiry.
type TokenResponse struct {
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// GmailProfileResponse is the connection check result.
type GmailProfileResponse struct {
	Connected     bool   `json:"connected"`
	EmailAddress  string `json:"email_address"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
}

// StoreGmailTokens godoc
// @ID          storeGmailTokens
// @Summary     Store Gmail tokens
// @Description Seeds the token store with the provider token pair from the OAuth callback. A missing refresh token keeps the stored one.
// @Tags        Gmail
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.StoreTokensRequest  true  "Token pair"
// @Success     201  {object} handlers.TokenResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /gmail/tokens [post]
func (h *Handlers) StoreGmailTokens(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	var req StoreTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.AccessToken) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "access_token required")
		return
	}
	if req.ExpiresIn < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "expires_in must be positive")
		return
	}
	tok := &oauth2.Token{
		AccessToken:  strings.TrimSpace(req.AccessToken),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
	}
	if req.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	e, err := h.tokenSvc.Store(c.Request.Context(), sess.UserID, tok)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, TokenResponse{ExpiresAt: e.ExpiresAt})
}

// RefreshGmailToken godoc
// @ID          refreshGmailToken
// @Summary     Refresh the Gmail access token
// @Description Exchanges the stored refresh token for a new access token.
// @Tags        Gmail
// @Produce     json
// @Success     200  {object} handlers.TokenResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized or refresh rejected"
// @Failure     404  {object} handlers.ErrorResponse "No refresh token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /gmail/refresh-token [post]
func (h *Handlers) RefreshGmailToken(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	e, err := h.tokenSvc.Refresh(c.Request.Context(), sess.UserID)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrNoRefreshToken), errors.Is(err, token.ErrNoGmailConnection):
			fail(c, http.StatusNotFound, ErrCodeNoRefreshToken, "No refresh token found")
		case errors.Is(err, token.ErrMissingOAuthConfig):
			fail(c, http.StatusInternalServerError, ErrCodeConfiguration, "Google OAuth client is not configured")
		case errors.Is(err, token.ErrRefreshFailed):
			fail(c, http.StatusUnauthorized, ErrCodeTokenRefreshFailed, "Failed to refresh token")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, TokenResponse{AccessToken: e.AccessToken, ExpiresAt: e.ExpiresAt})
}

// GmailProfile godoc
// @ID          gmailProfile
// @Summary     Gmail connection check
// @Tags        Gmail
// @Produce     json
// @Success     200  {object} handlers.GmailProfileResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized or Gmail not connected"
// @Failure     502  {object} handlers.ErrorResponse "Gmail error"
// @Router      /gmail/profile [get]
func (h *Handlers) GmailProfile(c *gin.Context) {
	sess, okSess := currentSession(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	p, err := h.mailSvc.Profile(c.Request.Context(), sess)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, GmailProfileResponse{
		Connected:     true,
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	})
}
