package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tbourn/mailsweep-backend/internal/config"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes against the provider's token endpoint with the
// refresh_token grant.
type OAuthRefresher struct {
	conf       *oauth2.Config
	configured bool
	httpClient *http.Client
}

// NewOAuthRefresher builds a Refresher from the Google client settings. A nil
// httpClient uses http.DefaultClient.
func NewOAuthRefresher(g config.GoogleConfig, httpClient *http.Client) *OAuthRefresher {
	ep := google.Endpoint
	if u := strings.TrimSpace(g.TokenURL); u != "" {
		ep.TokenURL = u
	}
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &OAuthRefresher{
		conf: &oauth2.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			Endpoint:     ep,
		},
		configured: g.Configured(),
		httpClient: httpClient,
	}
}

// Refresh returns a fresh token. Provider rejections wrap ErrRefreshFailed;
// missing client credentials return ErrMissingOAuthConfig.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if !r.configured {
		return nil, ErrMissingOAuthConfig
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrNoRefreshToken
	}
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("%w: provider returned %d %s", ErrRefreshFailed, re.Response.StatusCode, re.ErrorCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return tok, nil
}
