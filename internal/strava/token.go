package strava

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const DefaultAuthURL = "https://www.strava.com"

// Credentials are the long-lived app credentials used to mint access tokens.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenProvider exchanges the stored refresh token for a short-lived
// access token.
type TokenProvider struct {
	oauth        *oauth2.Config
	refreshToken string
	httpClient   *http.Client
}

// NewTokenProvider builds a provider against authURL (DefaultAuthURL in
// production). httpClient may be nil.
func NewTokenProvider(creds Credentials, authURL string, httpClient *http.Client) *TokenProvider {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	return &TokenProvider{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   strings.TrimSuffix(authURL, "/") + "/oauth/authorize",
				TokenURL:  strings.TrimSuffix(authURL, "/") + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: creds.RefreshToken,
		httpClient:   httpClient,
	}
}

// Token returns a fresh access token and its expiry. Every failure is an
// *AuthError; there is no internal retry.
func (p *TokenProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	if p.oauth.ClientID == "" || p.oauth.ClientSecret == "" || p.refreshToken == "" {
		return nil, &AuthError{Err: errors.New("client id, client secret and refresh token are required")}
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	ts := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken})
	token, err := ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			slog.Warn("strava token refresh rejected",
				"status", retrieveErr.Response.StatusCode,
				"error_code", retrieveErr.ErrorCode,
			)
		}
		return nil, &AuthError{Err: err}
	}

	if token.RefreshToken != "" && token.RefreshToken != p.refreshToken {
		slog.Warn("strava rotated the refresh token, update STRAVA_REFRESH_TOKEN",
			"expires_at", token.Expiry,
		)
		p.refreshToken = token.RefreshToken
	}

	slog.Debug("strava access token issued", "expires_at", token.Expiry)
	return token, nil
}
