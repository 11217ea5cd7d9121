package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeDuplicateEmail marks a registration against an existing address.
	TextCodeDuplicateEmail = "DUPLICATE_EMAIL"
	// TextCodeUserNotFound marks a lookup miss for the submitted identifier.
	TextCodeUserNotFound = "USER_NOT_FOUND"
	// TextCodeNoCodeIssued marks a verification without a live ledger row.
	// Expired codes report the same code: an expired code and a missing code
	// are indistinguishable to the caller.
	TextCodeNoCodeIssued = "NO_CODE_ISSUED"
	// TextCodeCodeMismatch marks a submitted code that differs from the ledger.
	TextCodeCodeMismatch = "CODE_MISMATCH"
	// TextCodeTokenExpired marks an expired access or refresh token.
	TextCodeTokenExpired = "AUTH_TOKEN_EXPIRED"
	// TextCodeTokenMalformed marks a token that failed to parse or verify.
	TextCodeTokenMalformed = "AUTH_TOKEN_MALFORMED"
	// TextCodeInvalidCreds is the generic credential failure code.
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeTooManyAttempts marks logins rejected during the cool down.
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	// TextCodeAccountNotActive marks logins against unverified accounts.
	TextCodeAccountNotActive = "ACCOUNT_NOT_ACTIVE"
)

// ErrDuplicateEmail is returned when the email uniqueness constraint rejects
// a registration. The store is the sole arbiter; no partial writes survive.
var ErrDuplicateEmail = goerrors.New("a user with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrUserNotFound is returned when no user matches the submitted identifier.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoCodeIssued is returned when the ledger holds no live code for the
// user, including codes that aged past the configured validity window.
var ErrNoCodeIssued = goerrors.New("invalid or expired verification code", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoCodeIssued).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeMismatch is returned when the submitted code differs from the
// stored one. A mismatch does not consume the ledger row.
var ErrCodeMismatch = goerrors.New("invalid verification code", goerrors.CategoryAuth).
	WithTextCode(TextCodeCodeMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for access or refresh tokens past their expiry.
var ErrTokenExpired = goerrors.New("authentication token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail parsing or signature checks.
var ErrTokenMalformed = goerrors.New("invalid authentication token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the generic credential failure. Lookup
// misses during login report the same error to limit account enumeration.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotActive blocks login until the email has been verified.
var ErrAccountNotActive = goerrors.New("account is not active, verify your email first", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotActive).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while the cool down window is open.
var ErrTooManyLoginAttempts = goerrors.New("too many failed login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation)

// IsUniqueViolation reports whether err comes from a relational uniqueness
// constraint. Matches the driver message text since bun surfaces the raw
// sqlite/postgres error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
