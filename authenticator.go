package accounts

import (
	"context"
	"reflect"
)

// LoginResult is the login response payload: the token pair plus the role
// projection and minimal profile fields.
type LoginResult struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    LoginProfile `json:"user"`
}

// LoginProfile is the minimal identity projection returned on login.
type LoginProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Auther authenticates credentials and mints token pairs.
type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokenService TokenService) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and returns the token pair with the
// identity projection attached.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return nil, ErrMismatchedHashAndPassword
	}

	pair, err := s.tokenService.IssuePair(identity)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		User: LoginProfile{
			ID:       identity.ID(),
			Email:    identity.Email(),
			FullName: identity.FullName(),
			Role:     identity.Role(),
		},
	}, nil
}

// Refresh mints a new access token from a refresh token.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (string, error) {
	access, err := s.tokenService.Refresh(refreshToken)
	if err != nil {
		s.logger.Error("Refresh token error: %v", err)
		return "", err
	}
	return access, nil
}
