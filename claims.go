package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenTypeAccess marks short lived bearer tokens.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks the longer lived token used to mint new
	// access tokens without re-authentication.
	TokenTypeRefresh = "refresh"
)

// JWTClaims is the claim set carried by both halves of the token pair.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	UserRole  string `json:"role,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// UserUUID parses the user ID into a uuid
func (c *JWTClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *JWTClaims) IsRefresh() bool {
	return c.TokenType == TokenTypeRefresh
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
