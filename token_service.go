package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPair is the login credential: a short lived access token plus the
// refresh token used to mint replacements.
type TokenPair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// TokenService issues and validates the signed token pair.
type TokenService interface {
	IssuePair(identity Identity) (*TokenPair, error)
	Validate(tokenString string) (*JWTClaims, error)
	Refresh(refreshToken string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: []byte(cfg.GetSigningKey()),
		accessTTL:  cfg.GetAccessTokenTTL(),
		refreshTTL: cfg.GetRefreshTokenTTL(),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		logger:     logger,
	}
}

// IssuePair mints the access/refresh pair for an identity. Both tokens carry
// the user id and role; only the access token is accepted by Validate.
func (ts *TokenServiceImpl) IssuePair(identity Identity) (*TokenPair, error) {
	access, err := ts.sign(ts.newClaims(identity.ID(), identity.Role(), TokenTypeAccess, ts.accessTTL))
	if err != nil {
		return nil, err
	}

	refresh, err := ts.sign(ts.newClaims(identity.ID(), identity.Role(), TokenTypeRefresh, ts.refreshTTL))
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Validate parses and validates an access token, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (*JWTClaims, error) {
	claims, err := ts.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Refresh accepts a refresh token and mints a new access token. Any parse,
// signature, type, or expiry failure reports the same ErrTokenExpired or
// ErrTokenMalformed the access path uses.
func (ts *TokenServiceImpl) Refresh(refreshToken string) (string, error) {
	claims, err := ts.parse(refreshToken)
	if err != nil {
		return "", err
	}

	if !claims.IsRefresh() {
		return "", ErrTokenMalformed
	}

	return ts.sign(ts.newClaims(claims.UserID(), claims.Role(), TokenTypeAccess, ts.accessTTL))
}

func (ts *TokenServiceImpl) newClaims(uid, role, tokenType string, ttl time.Duration) *JWTClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   uid,
			Audience:  aud,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       uid,
		UserRole:  role,
		TokenType: tokenType,
	}
}

func (ts *TokenServiceImpl) sign(claims *JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

func (ts *TokenServiceImpl) parse(tokenString string) (*JWTClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
