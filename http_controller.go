package accounts

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// AuthController exposes the account flows as JSON endpoints. Every handler
// maps 1:1 onto a command handler or the authenticator.
type AuthController struct {
	Logger   Logger
	Repo     RepositoryManager
	Auther   *Auther
	Notifier *Notifier
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerNotifier(notifier *Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = notifier
		return c
	}
}

// RegistrationCreatePayload is the registration body
type RegistrationCreatePayload struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 255)),
		validation.Field(&r.LastName, validation.Length(0, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// Register handles POST /auth/register
func (a *AuthController) Register(c *fiber.Ctx) error {
	return a.register(c, RoleStudent, false)
}

// RegisterAdmin handles POST /auth/register/admin; the route is gated by
// the admin middleware. Admin accounts start active.
func (a *AuthController) RegisterAdmin(c *fiber.Ctx) error {
	return a.register(c, RoleAdmin, true)
}

func (a *AuthController) register(c *fiber.Ctx, role UserRole, activated bool) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	var resp *RegisterUserResponse
	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Phone:     NormalizePhoneNumber(payload.Phone),
		Password:  payload.Password,
		Role:      role,
		Activated: activated,
		OnResponse: func(r *RegisterUserResponse) {
			resp = r
		},
	}

	handler := NewRegisterUserHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully. Please check your email to verify your account.",
		"user":    resp.User,
	})
}

// LoginPayload is the login body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login handles POST /auth/login
func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	result, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(result)
}

// RefreshPayload is the token refresh body
type RefreshPayload struct {
	Refresh string `json:"refresh"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Refresh, validation.Required),
	)
}

// RefreshToken handles POST /auth/token/refresh
func (a *AuthController) RefreshToken(c *fiber.Ctx) error {
	payload := new(RefreshPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	access, err := a.Auther.Refresh(c.Context(), payload.Refresh)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"access": access})
}

// VerifyEmailPayload is the activation body
type VerifyEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"otp"`
}

// Validate will run validation rules
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(CodeDigits, CodeDigits), is.Digit),
	)
}

// VerifyEmail handles POST /auth/verify-email
func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	payload := new(VerifyEmailPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	var resp *VerifyEmailResponse
	req := VerifyEmailMessage{
		Email: payload.Email,
		Code:  payload.Code,
		OnResponse: func(r *VerifyEmailResponse) {
			resp = r
		},
	}

	handler := NewVerifyEmailHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	if resp.AlreadyVerified {
		return c.JSON(fiber.Map{"message": "Email already verified."})
	}

	return c.JSON(fiber.Map{"message": "Email successfully verified! You can now log in."})
}

// ResendPayload is the activation resend body
type ResendPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ResendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResendActivation handles POST /auth/resend-activation-code
func (a *AuthController) ResendActivation(c *fiber.Ctx) error {
	payload := new(ResendPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	var resp *ResendActivationResponse
	req := ResendActivationMessage{
		Email: payload.Email,
		OnResponse: func(r *ResendActivationResponse) {
			resp = r
		},
	}

	handler := NewResendActivationHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	if resp.AlreadyVerified {
		return c.JSON(fiber.Map{"message": "Email already verified."})
	}

	return c.JSON(fiber.Map{"message": "A new verification code has been sent to your email address."})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// PasswordResetRequest handles POST /auth/password-reset-request
func (a *AuthController) PasswordResetRequest(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	req := InitializePasswordResetMessage{Email: payload.Email}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "We have sent an OTP to your email address."})
}

// PasswordResetConfirmPayload holds values for the reset confirmation
type PasswordResetConfirmPayload struct {
	Email           string `json:"email"`
	Code            string `json:"otp"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(CodeDigits, CodeDigits), is.Digit),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// PasswordResetConfirm handles PATCH /auth/password-reset-confirm
func (a *AuthController) PasswordResetConfirm(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmPayload)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	req := FinalizePasswordResetMessage{
		Email:    payload.Email,
		Code:     payload.Code,
		Password: payload.Password,
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password reset successful."})
}

// Profile handles GET /auth/profile
func (a *AuthController) Profile(c *fiber.Ctx) error {
	claims, err := ClaimsFromContext(c)
	if err != nil {
		return a.renderError(c, err)
	}

	uid, err := claims.UserUUID()
	if err != nil {
		return a.renderError(c, ErrTokenMalformed)
	}

	user, err := a.Repo.Users().GetByID(c.Context(), uid.String())
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(profileResponse(user))
}

// ProfileUpdatePayload is the profile patch body
type ProfileUpdatePayload struct {
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone_number"`
	ProfileImage *string `json:"profile_image"`
}

// Validate will validate the payload
func (r ProfileUpdatePayload) Validate() error {
	if r.Phone != nil {
		if err := ValidatePhoneNumber(*r.Phone); err != nil {
			return validation.Errors{"phone_number": err}
		}
	}
	return nil
}

// ProfileUpdate handles PATCH /auth/profile
func (a *AuthController) ProfileUpdate(c *fiber.Ctx) error {
	claims, err := ClaimsFromContext(c)
	if err != nil {
		return a.renderError(c, err)
	}

	uid, err := claims.UserUUID()
	if err != nil {
		return a.renderError(c, ErrTokenMalformed)
	}

	payload := new(ProfileUpdatePayload)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	patch := ProfilePatch{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		ProfileImage: payload.ProfileImage,
	}
	if payload.Phone != nil {
		normalized := NormalizePhoneNumber(*payload.Phone)
		patch.Phone = &normalized
	}

	user, err := a.Repo.Users().UpdateProfile(c.Context(), uid, patch)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(profileResponse(user))
}

func profileResponse(user *User) fiber.Map {
	return fiber.Map{
		"id":            user.ID,
		"email":         user.Email,
		"role":          user.Role,
		"full_name":     user.FullName(),
		"phone_number":  user.Phone,
		"profile_image": user.ProfileImage,
		"date_joined":   user.CreatedAt,
		"last_login":    user.LoggedInAt,
	}
}

func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		payload := fiber.Map{"error": richErr.Message}
		if richErr.TextCode != "" {
			payload["code"] = richErr.TextCode
		}
		return c.Status(statusFromCategory(richErr.Category)).JSON(payload)
	}

	a.Logger.Error("unhandled error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values and otherwise requires a
// parseable, valid number.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}

	return nil
}

// NormalizePhoneNumber formats a parseable number as E.164 and leaves
// anything else untouched.
func NormalizePhoneNumber(s string) string {
	if s == "" {
		return s
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return s
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}
