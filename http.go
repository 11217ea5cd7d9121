package accounts

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ContextKey is the locals key under which validated claims are stored.
const ContextKey = "accounts:claims"

// RegisterRoutes mounts the account endpoints on the given router, usually
// an app or a versioned group.
func RegisterRoutes(router fiber.Router, controller *AuthController, tokens TokenService, social ...SocialRoutes) {
	auth := router.Group("/auth")

	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/token/refresh", controller.RefreshToken)
	auth.Post("/verify-email", controller.VerifyEmail)
	auth.Post("/resend-activation-code", controller.ResendActivation)
	auth.Post("/password-reset-request", controller.PasswordResetRequest)
	auth.Patch("/password-reset-confirm", controller.PasswordResetConfirm)

	auth.Get("/profile", Protected(tokens), controller.Profile)
	auth.Patch("/profile", Protected(tokens), controller.ProfileUpdate)

	auth.Post("/register/admin", Protected(tokens), RequireRole(RoleAdmin), controller.RegisterAdmin)

	for _, s := range social {
		s.Register(auth)
	}
}

// SocialRoutes lets sign-in providers hang their endpoints off /auth.
type SocialRoutes interface {
	Register(router fiber.Router)
}

// Protected validates the bearer token and stores the claims in the
// request locals. Requests without a valid access token are rejected.
func Protected(tokens TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed token",
			})
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			status := fiber.StatusUnauthorized
			payload := fiber.Map{"error": "invalid or expired token"}
			if IsTokenExpiredError(err) {
				payload["code"] = TextCodeTokenExpired
			}
			return c.Status(status).JSON(payload)
		}

		c.Locals(ContextKey, claims)

		return c.Next()
	}
}

// RequireRole rejects authenticated requests whose role sits below the
// given one. Must run after Protected.
func RequireRole(role UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := ClaimsFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed token",
			})
		}

		if !IsAtLeast(claims.Role(), role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient permissions",
			})
		}

		return c.Next()
	}
}

// ClaimsFromContext returns the claims stored by the Protected middleware.
func ClaimsFromContext(c *fiber.Ctx) (*JWTClaims, error) {
	claims, ok := c.Locals(ContextKey).(*JWTClaims)
	if !ok || claims == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
