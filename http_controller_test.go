package accounts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	accounts "github.com/campuskit/go-accounts"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testApp struct {
	app    *fiber.App
	repo   accounts.RepositoryManager
	tokens accounts.TokenService
	db     *bun.DB
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	db := setupTestDB(t)
	repo := accounts.NewRepositoryManager(db, 5*time.Minute)
	tokens := accounts.NewTokenService(testTokenConfig(time.Minute, time.Hour), nil)
	auther := accounts.NewAuthenticator(accounts.NewUserProvider(repo.Users()), tokens)

	controller := accounts.NewAuthController(
		accounts.WithControllerRepo(repo),
		accounts.WithControllerAuther(auther),
	)

	app := fiber.New()
	accounts.RegisterRoutes(app, controller, tokens)

	return &testApp{app: app, repo: repo, tokens: tokens, db: db}
}

func (ta *testApp) request(t *testing.T, method, path string, payload any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	decoded := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp, decoded
}

func (ta *testApp) registerAndActivate(t *testing.T, email, password string) *accounts.User {
	t.Helper()
	ctx := context.Background()

	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"first_name":       "Peter",
		"last_name":        "Parker",
		"email":            email,
		"password":         password,
		"confirm_password": password,
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	user, err := ta.repo.Users().GetByEmail(ctx, email)
	require.NoError(t, err)

	code, err := ta.repo.Codes().ActiveFor(ctx, user.ID)
	require.NoError(t, err)

	verifyResp, _ := ta.request(t, fiber.MethodPost, "/auth/verify-email", map[string]string{
		"email": email,
		"otp":   code.Code,
	}, "")
	require.Equal(t, fiber.StatusOK, verifyResp.StatusCode)

	user, err = ta.repo.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	require.True(t, user.Active)
	return user
}

func (ta *testApp) login(t *testing.T, email, password string) (string, string) {
	t.Helper()

	resp, body := ta.request(t, fiber.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	access, _ := body["access"].(string)
	refresh, _ := body["refresh"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestRegisterEndpointValidation(t *testing.T) {
	ta := setupTestApp(t)

	resp, body := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"email":            "not-an-email",
		"password":         "super-secret",
		"confirm_password": "something-else",
	}, "")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	errs, ok := body["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "confirm_password")
}

func TestRegisterEndpointHappyPath(t *testing.T) {
	ta := setupTestApp(t)

	resp, body := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"first_name":       "Peter",
		"email":            "peter@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}, "")

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User registered successfully. Please check your email to verify your account.", body["message"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "peter@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")
}

func TestRegisterEndpointDuplicateEmail(t *testing.T) {
	ta := setupTestApp(t)

	payload := map[string]string{
		"email":            "peter@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}

	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register", payload, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := ta.request(t, fiber.MethodPost, "/auth/register", payload, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, accounts.TextCodeDuplicateEmail, body["code"])
}

func TestLoginBeforeVerificationRejected(t *testing.T) {
	ta := setupTestApp(t)

	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"email":            "peter@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := ta.request(t, fiber.MethodPost, "/auth/login", map[string]string{
		"email":    "peter@example.com",
		"password": "super-secret",
	}, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, accounts.TextCodeAccountNotActive, body["code"])
}

func TestVerifyWrongCodeThenCorrectCode(t *testing.T) {
	ta := setupTestApp(t)
	ctx := context.Background()

	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"email":            "peter@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	user, err := ta.repo.Users().GetByEmail(ctx, "peter@example.com")
	require.NoError(t, err)
	code, err := ta.repo.Codes().ActiveFor(ctx, user.ID)
	require.NoError(t, err)

	wrong := "00000"
	resp, body := ta.request(t, fiber.MethodPost, "/auth/verify-email", map[string]string{
		"email": "peter@example.com",
		"otp":   wrong,
	}, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, accounts.TextCodeCodeMismatch, body["code"])

	resp, body = ta.request(t, fiber.MethodPost, "/auth/verify-email", map[string]string{
		"email": "peter@example.com",
		"otp":   code.Code,
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Email successfully verified! You can now log in.", body["message"])
}

func TestTokenRefreshEndpoint(t *testing.T) {
	ta := setupTestApp(t)
	ta.registerAndActivate(t, "peter@example.com", "super-secret")
	_, refresh := ta.login(t, "peter@example.com", "super-secret")

	resp, body := ta.request(t, fiber.MethodPost, "/auth/token/refresh", map[string]string{
		"refresh": refresh,
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	access, _ := body["access"].(string)
	require.NotEmpty(t, access)

	_, err := ta.tokens.Validate(access)
	require.NoError(t, err)
}

func TestProfileRequiresToken(t *testing.T) {
	ta := setupTestApp(t)

	resp, _ := ta.request(t, fiber.MethodGet, "/auth/profile", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = ta.request(t, fiber.MethodGet, "/auth/profile", nil, "garbage-token")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestProfileGetAndPatch(t *testing.T) {
	ta := setupTestApp(t)
	user := ta.registerAndActivate(t, "peter@example.com", "super-secret")
	access, _ := ta.login(t, "peter@example.com", "super-secret")

	resp, body := ta.request(t, fiber.MethodGet, "/auth/profile", nil, access)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, user.Email, body["email"])
	assert.Equal(t, accounts.RoleStudent, body["role"])

	resp, body = ta.request(t, fiber.MethodPatch, "/auth/profile", map[string]string{
		"first_name":   "Miles",
		"phone_number": "+12125551234",
	}, access)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Miles Parker", body["full_name"])
	assert.Equal(t, "+12125551234", body["phone_number"])

	// email and role stay read only, unknown fields are ignored
	resp, body = ta.request(t, fiber.MethodPatch, "/auth/profile", map[string]string{
		"email": "evil@example.com",
		"role":  "admin",
	}, access)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "peter@example.com", body["email"])
	assert.Equal(t, accounts.RoleStudent, body["role"])
}

func TestAdminRegistrationRequiresAdminRole(t *testing.T) {
	ta := setupTestApp(t)
	ctx := context.Background()

	student := ta.registerAndActivate(t, "student@example.com", "super-secret")
	studentToken, _ := ta.login(t, "student@example.com", "super-secret")

	payload := map[string]string{
		"email":            "newadmin@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}

	// no token
	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register/admin", payload, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// student token
	resp, _ = ta.request(t, fiber.MethodPost, "/auth/register/admin", payload, studentToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// promote and retry
	require.NoError(t, ta.repo.Users().AssignRole(ctx, student.ID, accounts.RoleAdmin))
	adminToken, _ := ta.login(t, "student@example.com", "super-secret")

	resp, _ = ta.request(t, fiber.MethodPost, "/auth/register/admin", payload, adminToken)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	created, err := ta.repo.Users().GetByEmail(ctx, "newadmin@example.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleAdmin, created.Role)
	assert.True(t, created.Active)
}

func TestPasswordResetEndpoints(t *testing.T) {
	ta := setupTestApp(t)
	ctx := context.Background()

	user := ta.registerAndActivate(t, "peter@example.com", "super-secret")

	resp, body := ta.request(t, fiber.MethodPost, "/auth/password-reset-request", map[string]string{
		"email": "peter@example.com",
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "We have sent an OTP to your email address.", body["message"])

	code, err := ta.repo.Codes().ActiveFor(ctx, user.ID)
	require.NoError(t, err)

	resp, body = ta.request(t, fiber.MethodPatch, "/auth/password-reset-confirm", map[string]string{
		"email":            "peter@example.com",
		"otp":              code.Code,
		"password":         "brand-new-password",
		"confirm_password": "brand-new-password",
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password reset successful.", body["message"])

	ta.login(t, "peter@example.com", "brand-new-password")
}

func TestResendActivationEndpoint(t *testing.T) {
	ta := setupTestApp(t)

	resp, _ := ta.request(t, fiber.MethodPost, "/auth/register", map[string]string{
		"email":            "peter@example.com",
		"password":         "super-secret",
		"confirm_password": "super-secret",
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = ta.request(t, fiber.MethodPost, "/auth/resend-activation-code", map[string]string{
		"email": "peter@example.com",
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	ta.registerAndActivate(t, "active@example.com", "super-secret")
	resp, body := ta.request(t, fiber.MethodPost, "/auth/resend-activation-code", map[string]string{
		"email": "active@example.com",
	}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Email already verified.", body["message"])
}

func TestPayloadValidationRules(t *testing.T) {
	payload := accounts.RegistrationCreatePayload{
		Email:           "peter@example.com",
		Phone:           "not-a-phone",
		Password:        "super-secret",
		ConfirmPassword: "super-secret",
	}
	err := payload.Validate()
	require.Error(t, err)
	assert.Contains(t, accounts.FormatValidationErrorToMap(err), "phone_number")

	payload.Phone = "+12125551234"
	require.NoError(t, payload.Validate())

	short := accounts.RegistrationCreatePayload{
		Email:           "peter@example.com",
		Password:        "short",
		ConfirmPassword: "short",
	}
	err = short.Validate()
	require.Error(t, err)
	assert.Contains(t, accounts.FormatValidationErrorToMap(err), "password")
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "+12125551234", accounts.NormalizePhoneNumber("(212) 555-1234"))
	assert.Equal(t, "", accounts.NormalizePhoneNumber(""))
	assert.Equal(t, "garbage", accounts.NormalizePhoneNumber("garbage"))
}
