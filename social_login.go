package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/campuskit/go-accounts/social"
)

const stateCookiePrefix = "oauth_state_"

// SocialController runs the provider sign-in flow. A callback with a
// verified email either finds the existing account or registers an
// active student with the profile the provider reports, then issues the
// usual token pair.
type SocialController struct {
	provider social.Provider
	repo     RepositoryManager
	tokens   TokenService
	logger   Logger
}

func NewSocialController(provider social.Provider, repo RepositoryManager, tokens TokenService) *SocialController {
	return &SocialController{
		provider: provider,
		repo:     repo,
		tokens:   tokens,
		logger:   defLogger{},
	}
}

func (s *SocialController) WithLogger(logger Logger) *SocialController {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Register mounts GET /social/<name> and /social/<name>/callback on the
// given router, usually the /auth group.
func (s *SocialController) Register(router fiber.Router) {
	name := s.provider.Name()
	router.Get("/social/"+name, s.Begin)
	router.Get("/social/"+name+"/callback", s.Callback)
}

// Begin redirects the client to the provider's consent screen.
func (s *SocialController) Begin(c *fiber.Ctx) error {
	state, err := generateState()
	if err != nil {
		s.logger.Error("social %s state: %v", s.provider.Name(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookiePrefix + s.provider.Name(),
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(s.provider.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

// Callback completes the flow and responds with the login payload.
func (s *SocialController) Callback(c *fiber.Ctx) error {
	cookie := stateCookiePrefix + s.provider.Name()
	state := c.Cookies(cookie)
	c.ClearCookie(cookie)

	if state == "" || c.Query("state") != state {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid state parameter",
		})
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing authorization code",
		})
	}

	result, err := s.SignIn(c.Context(), code)
	if err != nil {
		s.logger.Error("social %s sign in: %v", s.provider.Name(), err)

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return c.Status(statusFromCategory(richErr.Category)).JSON(fiber.Map{
				"error": richErr.Message,
			})
		}

		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "sign in with " + s.provider.Name() + " failed",
		})
	}

	return c.JSON(result)
}

// SignIn exchanges the authorization code and resolves it to a local
// account with a fresh token pair.
func (s *SocialController) SignIn(ctx context.Context, code string) (*LoginResult, error) {
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := s.provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	if profile.Email == "" || !profile.EmailVerified {
		return nil, goerrors.New(
			"provider account has no verified email",
			goerrors.CategoryAuth,
		).WithCode(goerrors.CodeUnauthorized)
	}

	user, err := s.resolveUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(identityFromUser(user))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		User: LoginProfile{
			ID:       user.ID.String(),
			Email:    user.Email,
			FullName: user.FullName(),
			Role:     user.Role,
		},
	}, nil
}

// resolveUser finds the account with the provider's email or registers
// an active one. The provider vouched for the address so no activation
// code is issued.
func (s *SocialController) resolveUser(ctx context.Context, profile *social.Profile) (*User, error) {
	record := &User{
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Email:        profile.Email,
		ProfileImage: profile.AvatarURL,
		Role:         RoleStudent,
		Active:       true,
	}

	var user *User
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		if user, txErr = s.repo.Users().GetOrRegisterTx(ctx, tx, record); txErr != nil {
			return txErr
		}

		// A pending local account with the same address is activated:
		// the provider just proved ownership.
		if !user.Active {
			if txErr = s.repo.Users().ActivateTx(ctx, tx, user.ID); txErr != nil {
				return txErr
			}
			user.Active = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
