// Package social defines the narrow contract a sign-in provider has to
// satisfy plus the normalized types exchanged with it.
package social

import (
	"context"
	"time"
)

// Provider is the adapter surface for an OAuth2 sign-in provider. The
// account layer only redirects, exchanges the code, and reads the
// profile; token refresh and revocation stay with the provider.
type Provider interface {
	// Name returns the provider identifier, e.g. "google".
	Name() string

	// AuthCodeURL returns the URL to redirect users for authorization.
	// The state parameter is echoed back on the callback.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*Token, error)

	// UserInfo fetches the user's profile using the access token.
	UserInfo(ctx context.Context, token *Token) (*Profile, error)
}

// Token represents an OAuth2 token response.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Scopes      []string
	Raw         map[string]any
}

// Profile represents normalized user information from a provider.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	AvatarURL      string
	Raw            map[string]any
}
