package accounts

import (
	"os"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AppConfig is the process configuration. It is built once at startup and
// handed to the components that need it; nothing in this package reads the
// environment after construction.
type AppConfig struct {
	HTTPAddr string
	DSN      string

	SigningKey      string
	Issuer          string
	Audience        []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// CodeTTL bounds how long an issued one time code stays valid. The
	// user facing copy promises five minutes; unlike the legacy system
	// the ledger actually enforces it.
	CodeTTL time.Duration

	SMTP SMTPConfig

	Google GoogleConfig
}

// SMTPConfig configures the notification gateway transport.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// GoogleConfig configures the optional Google sign-in entry point.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

var _ Config = (*AppConfig)(nil)

func (c *AppConfig) GetSigningKey() string             { return c.SigningKey }
func (c *AppConfig) GetIssuer() string                 { return c.Issuer }
func (c *AppConfig) GetAudience() []string             { return c.Audience }
func (c *AppConfig) GetAccessTokenTTL() time.Duration  { return c.AccessTokenTTL }
func (c *AppConfig) GetRefreshTokenTTL() time.Duration { return c.RefreshTokenTTL }

// LoadConfig reads the environment once and returns the explicit config
// struct. Call godotenv.Load beforehand if a .env file should be honored.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:        envOr("HTTP_ADDR", ":3000"),
		DSN:             envOr("DB_DSN", "file:accounts.db?_pragma=foreign_keys(1)"),
		SigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		Issuer:          envOr("JWT_ISSUER", "go-accounts"),
		AccessTokenTTL:  envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CodeTTL:         envDuration("OTP_TTL", 5*time.Minute),
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: envInt("SMTP_PORT", 2525),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: envOr("SMTP_FROM", "noreply@campuskit.dev"),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			CallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		},
	}

	if aud := os.Getenv("JWT_AUDIENCE"); aud != "" {
		cfg.Audience = []string{aud}
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("JWT_SIGNING_KEY is required", goerrors.CategoryValidation)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
