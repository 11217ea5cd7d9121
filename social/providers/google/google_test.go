package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderAuthCodeURL(t *testing.T) {
	provider := New(Config{
		ClientID:    "client-id",
		CallbackURL: "https://example.com/callback",
	})

	authURL := provider.AuthCodeURL("state-token")

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "https://example.com/callback", query.Get("redirect_uri"))
	assert.Equal(t, "state-token", query.Get("state"))
	assert.Equal(t, "code", query.Get("response_type"))

	scope := query.Get("scope")
	assert.Contains(t, scope, "openid")
	assert.Contains(t, scope, "email")
	assert.Contains(t, scope, "profile")
}

func TestProviderExchangeAndUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			values, err := url.ParseQuery(string(body))
			assert.NoError(t, err)

			assert.Equal(t, "client-id", values.Get("client_id"))
			assert.Equal(t, "client-secret", values.Get("client_secret"))
			assert.Equal(t, "auth-code", values.Get("code"))
			assert.Equal(t, "authorization_code", values.Get("grant_type"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token",
				"token_type":   "Bearer",
				"expires_in":   3600,
				"scope":        "openid email profile",
				"id_token":     "id-token",
			})
		case "/userinfo":
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":            "user-1",
				"email":          "user@example.com",
				"email_verified": true,
				"name":           "User Example",
				"given_name":     "User",
				"family_name":    "Example",
				"picture":        "https://example.com/avatar.png",
				"locale":         "en",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://example.com/callback",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/userinfo",
	})

	token, err := provider.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "token", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.ExpiresAt.IsZero())
	assert.Equal(t, []string{"openid", "email", "profile"}, token.Scopes)
	assert.Equal(t, "id-token", token.Raw["id_token"])

	profile, err := provider.UserInfo(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.ProviderUserID)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "user@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "User", profile.FirstName)
	assert.Equal(t, "Example", profile.LastName)
	assert.Equal(t, "https://example.com/avatar.png", profile.AvatarURL)
}

func TestProviderExchangeErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Bad authorization code.",
		})
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     server.URL,
	})

	_, err := provider.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google exchange failed")
}
