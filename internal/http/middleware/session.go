// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates API requests. The identity provider issues an HS256
// session JWT whose subject is the user id; the middleware verifies it and
// stores a token.Session in the Gin context. The provider token pair the
// identity provider received during the Google sign-in may ride along either
// as claims or as X-Provider-Token / X-Provider-Refresh-Token headers; the
// token manager uses it to seed the store when no row exists yet.
//
// When no secret is configured and AllowHeader is set (local development and
// tests), the X-User-ID header is trusted instead.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/mailsweep-backend/internal/token"
)

// Session related headers.
const (
	HeaderUserID               = "X-User-ID"
	HeaderProviderToken        = "X-Provider-Token"
	HeaderProviderRefreshToken = "X-Provider-Refresh-Token"
)

const ctxKeySession = "session"

var errNoCredentials = errors.New("missing credentials")

// SessionOptions configures Session.
type SessionOptions struct {
	// Secret is the HS256 key of the identity provider. Empty disables JWT
	// verification.
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer string
	// AllowHeader trusts X-User-ID. It only applies while Secret is empty;
	// with a secret configured a verified JWT is always required.
	AllowHeader bool
}

// SessionClaims is the subset of the identity provider's JWT we read.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email                string `json:"email,omitempty"`
	ProviderToken        string `json:"provider_token,omitempty"`
	ProviderRefreshToken string `json:"provider_refresh_token,omitempty"`
}

// Session authenticates the request and aborts with 401 when no identity can
// be established.
func Session(opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := resolveSession(c, opts)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if v := strings.TrimSpace(c.GetHeader(HeaderProviderToken)); v != "" {
			sess.ProviderToken = v
		}
		if v := strings.TrimSpace(c.GetHeader(HeaderProviderRefreshToken)); v != "" {
			sess.ProviderRefreshToken = v
		}
		c.Set(ctxKeySession, sess)
		bindUser(c, sess.UserID)
		c.Next()
	}
}

func resolveSession(c *gin.Context, opts SessionOptions) (token.Session, error) {
	raw := bearer(c.GetHeader("Authorization"))
	if raw != "" && opts.Secret != "" {
		claims, err := ParseSessionToken(raw, opts.Secret, opts.Issuer)
		if err != nil {
			return token.Session{}, err
		}
		return token.Session{
			UserID:               claims.Subject,
			ProviderToken:        claims.ProviderToken,
			ProviderRefreshToken: claims.ProviderRefreshToken,
		}, nil
	}
	if opts.AllowHeader && opts.Secret == "" {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			return token.Session{UserID: uid}, nil
		}
	}
	return token.Session{}, errNoCredentials
}

// ParseSessionToken verifies an HS256 session JWT and returns its claims. The
// subject and expiry are required.
func ParseSessionToken(raw, secret, issuer string) (*SessionClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("session token has no subject")
	}
	return claims, nil
}

// SessionFrom returns the session stored by Session.
func SessionFrom(c *gin.Context) (token.Session, bool) {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return token.Session{}, false
	}
	s, ok := v.(token.Session)
	return s, ok && s.UserID != ""
}

func bearer(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
