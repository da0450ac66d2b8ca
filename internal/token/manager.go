// Package token keeps Gmail access tokens fresh for each user.
//
// The gmail_tokens row is the source of truth. A Cache in front of it avoids
// a database read per provider call, and concurrent refreshes for the same
// user inside one process are collapsed into a single provider round trip.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/observability"
	"github.com/tbourn/mailsweep-backend/internal/repo"
)

const (
	// DefaultSkew is how far ahead of expiry a token is treated as expired.
	DefaultSkew = 60 * time.Second
	// defaultLifetime applies when the provider omits expires_in.
	defaultLifetime = time.Hour
)

// Session is the authenticated caller as seen by the token manager. The
// provider tokens are only present right after the identity provider's
// OAuth sign-in.
type Session struct {
	UserID               string
	ProviderToken        string
	ProviderRefreshToken string
}

// Manager resolves a valid access token per user.
type Manager struct {
	DB        *gorm.DB
	Cache     Cache
	Refresher Refresher
	Skew      time.Duration

	log   zerolog.Logger
	now   func() time.Time
	group singleflight.Group
}

// NewManager returns a Manager. A nil cache gets a MemoryCache; a negative
// skew gets DefaultSkew.
func NewManager(db *gorm.DB, cache Cache, refresher Refresher, skew time.Duration, lg zerolog.Logger) *Manager {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if skew < 0 {
		skew = DefaultSkew
	}
	return &Manager{
		DB:        db,
		Cache:     cache,
		Refresher: refresher,
		Skew:      skew,
		log:       lg.With().Str("component", "token").Logger(),
		now:       time.Now,
	}
}

// AccessToken returns an access token for the session's user that is valid
// for at least Skew. It refreshes through the provider when needed.
func (m *Manager) AccessToken(ctx context.Context, s Session) (string, error) {
	tr := otel.Tracer("token/Manager")
	ctx, span := tr.Start(ctx, "AccessToken", trace.WithAttributes(attribute.String("user.id", s.UserID)))
	defer span.End()

	now := m.now()
	if e, ok := m.Cache.Get(s.UserID); ok && e.validAt(now, m.Skew) {
		span.SetAttributes(attribute.String("token.source", "cache"))
		return e.AccessToken, nil
	}

	row, err := repo.GetGmailToken(ctx, m.DB, s.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		if strings.TrimSpace(s.ProviderToken) == "" {
			return "", ErrNoGmailConnection
		}
		tok := &oauth2.Token{AccessToken: s.ProviderToken, RefreshToken: s.ProviderRefreshToken}
		e, err := m.Store(ctx, s.UserID, tok)
		if err != nil {
			return "", err
		}
		span.SetAttributes(attribute.String("token.source", "session"))
		return e.AccessToken, nil
	}
	if err != nil {
		return "", fmt.Errorf("load gmail token: %w", err)
	}

	e := Entry{AccessToken: row.AccessToken, ExpiresAt: row.ExpiresAt}
	if e.validAt(now, m.Skew) {
		m.Cache.Set(s.UserID, e)
		span.SetAttributes(attribute.String("token.source", "store"))
		return e.AccessToken, nil
	}

	span.SetAttributes(attribute.String("token.source", "refresh"))
	e, err = m.refreshShared(ctx, s.UserID, row)
	if err != nil {
		return "", err
	}
	return e.AccessToken, nil
}

// Store seeds the token row from an OAuth exchange and caches it. A zero
// expiry means one hour from now; an empty refresh token keeps the stored one.
func (m *Manager) Store(ctx context.Context, userID string, tok *oauth2.Token) (Entry, error) {
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return Entry{}, fmt.Errorf("store gmail token: empty access token")
	}
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(defaultLifetime)
	}
	var refresh *string
	if rt := strings.TrimSpace(tok.RefreshToken); rt != "" {
		refresh = &rt
	}
	row, err := repo.UpsertGmailToken(ctx, m.DB, userID, tok.AccessToken, refresh, expiresAt)
	if err != nil {
		return Entry{}, fmt.Errorf("store gmail token: %w", err)
	}
	e := Entry{AccessToken: row.AccessToken, ExpiresAt: row.ExpiresAt}
	m.Cache.Set(userID, e)
	m.log.Info().Str("user_id", userID).Time("expires_at", e.ExpiresAt).Bool("has_refresh", row.RefreshToken != nil).Msg("gmail token stored")
	return e, nil
}

// Refresh forces a provider refresh regardless of the current expiry.
func (m *Manager) Refresh(ctx context.Context, userID string) (Entry, error) {
	tr := otel.Tracer("token/Manager")
	ctx, span := tr.Start(ctx, "Refresh", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	row, err := repo.GetGmailToken(ctx, m.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return Entry{}, ErrNoGmailConnection
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load gmail token: %w", err)
	}
	return m.refreshShared(ctx, userID, row)
}

// Invalidate drops the cached token so the next call reads the store.
func (m *Manager) Invalidate(userID string) {
	m.Cache.Delete(userID)
}

// HasValidConnection reports whether an access token can be obtained.
func (m *Manager) HasValidConnection(ctx context.Context, s Session) bool {
	_, err := m.AccessToken(ctx, s)
	return err == nil
}

// refreshShared collapses concurrent refreshes of one user into one call.
// The shared refresh is detached from any single caller's cancellation; each
// caller stops waiting when its own ctx ends.
func (m *Manager) refreshShared(ctx context.Context, userID string, row *domain.GmailToken) (Entry, error) {
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(userID, func() (any, error) {
		return m.refresh(shared, userID, row)
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		if res.Shared {
			m.log.Debug().Str("user_id", userID).Msg("joined in-flight token refresh")
		}
		return res.Val.(Entry), nil
	}
}

func (m *Manager) refresh(ctx context.Context, userID string, row *domain.GmailToken) (Entry, error) {
	if row.RefreshToken == nil || strings.TrimSpace(*row.RefreshToken) == "" {
		observability.TokenRefreshes.WithLabelValues("no_refresh_token").Inc()
		return Entry{}, ErrNoRefreshToken
	}
	if m.Refresher == nil {
		return Entry{}, ErrMissingOAuthConfig
	}

	tok, err := m.Refresher.Refresh(ctx, *row.RefreshToken)
	if err != nil {
		observability.TokenRefreshes.WithLabelValues("failed").Inc()
		m.log.Warn().Err(err).Str("user_id", userID).Msg("gmail token refresh failed")
		return Entry{}, err
	}
	observability.TokenRefreshes.WithLabelValues("ok").Inc()

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(defaultLifetime)
	}
	var refresh *string
	if rt := strings.TrimSpace(tok.RefreshToken); rt != "" && rt != *row.RefreshToken {
		refresh = &rt
	}
	saved, err := repo.UpsertGmailToken(ctx, m.DB, userID, tok.AccessToken, refresh, expiresAt)
	if err != nil {
		return Entry{}, fmt.Errorf("save refreshed gmail token: %w", err)
	}

	e := Entry{AccessToken: saved.AccessToken, ExpiresAt: saved.ExpiresAt}
	m.Cache.Set(userID, e)
	m.log.Info().Str("user_id", userID).Time("expires_at", e.ExpiresAt).Msg("gmail token refreshed")
	return e, nil
}
