package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGmailConnection means the user never connected a Gmail account and
	// the session carries no provider token either.
	ErrNoGmailConnection = errors.New("no gmail connection")

	// ErrRefreshFailed means the stored token expired and could not be renewed.
	ErrRefreshFailed = errors.New("gmail token refresh failed")

	// ErrNoRefreshToken is the ErrRefreshFailed case where no refresh token is stored.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrRefreshFailed)

	// ErrMissingOAuthConfig means the OAuth client credentials are not configured.
	ErrMissingOAuthConfig = errors.New("google oauth client not configured")
)
