package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's coarse authorization label
type UserRole = string

const (
	// RoleStudent is the default role assigned at registration
	RoleStudent UserRole = "student"
	// RoleAdmin can manage accounts and register other admins
	RoleAdmin UserRole = "admin"
)

// User is the account model. Role is an explicit column set at creation and
// changed only through Users.AssignRole; Active gates login and stays false
// until the email address is verified.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	ProfileImage   string     `bun:"profile_image" json:"profile_image,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Active         bool       `bun:"is_active" json:"is_active"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"last_login,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"date_joined,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// FullName joins first and last name the way profile responses expect it.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// NormalizeEmail trims the address and lowercases the host part. The local
// part is kept as submitted, only the domain is case-insensitive.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// OneTimeCode is a ledger row. Its presence means a code was issued and not
// yet consumed; its absence means no pending verification. user_id is UNIQUE
// so a user holds at most one live code and a re-issue overwrites it.
type OneTimeCode struct {
	bun.BaseModel `bun:"table:one_time_codes,alias:otc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Code          string     `bun:"code,notnull" json:"-"`
	IssuedAt      *time.Time `bun:"issued_at,nullzero,default:current_timestamp" json:"issued_at,omitempty"`
}

// ExpiredAt reports whether the code is older than ttl at instant now.
func (c *OneTimeCode) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || c.IssuedAt == nil {
		return false
	}
	return now.Sub(*c.IssuedAt) > ttl
}
