package accounts_test

import (
	"context"
	"database/sql"

	accounts "github.com/campuskit/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockRepositoryManager implements accounts.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

// RunInTx executes the callback with a zero tx unless an error was
// stubbed, mirroring how the real manager surfaces callback failures.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Users() accounts.Users {
	args := m.Called()
	return args.Get(0).(accounts.Users)
}

func (m *MockRepositoryManager) Codes() accounts.OneTimeCodes {
	args := m.Called()
	return args.Get(0).(accounts.OneTimeCodes)
}

// MockUsers implements accounts.Users. The embedded repository interface
// covers the generic methods the command handlers never touch.
type MockUsers struct {
	repository.Repository[*accounts.User]
	mock.Mock
}

func (m *MockUsers) Register(ctx context.Context, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, record)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, record)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, record)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	args := m.Called(ctx, tx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) Activate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) AssignRole(ctx context.Context, id uuid.UUID, role accounts.UserRole) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

func (m *MockUsers) AssignRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role accounts.UserRole) error {
	args := m.Called(ctx, tx, id, role)
	return args.Error(0)
}

func (m *MockUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) UpdateProfile(ctx context.Context, id uuid.UUID, patch accounts.ProfilePatch) (*accounts.User, error) {
	args := m.Called(ctx, id, patch)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func userArg(v any) *accounts.User {
	if v == nil {
		return nil
	}
	return v.(*accounts.User)
}

// MockOneTimeCodes implements accounts.OneTimeCodes
type MockOneTimeCodes struct {
	mock.Mock
}

func (m *MockOneTimeCodes) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockOneTimeCodes) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, tx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockOneTimeCodes) Verify(ctx context.Context, userID uuid.UUID, submitted string) error {
	args := m.Called(ctx, userID, submitted)
	return args.Error(0)
}

func (m *MockOneTimeCodes) VerifyTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, submitted string) error {
	args := m.Called(ctx, tx, userID, submitted)
	return args.Error(0)
}

func (m *MockOneTimeCodes) ActiveFor(ctx context.Context, userID uuid.UUID) (*accounts.OneTimeCode, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.OneTimeCode), args.Error(1)
}

// MockMailer implements accounts.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

// MockUserTracker implements accounts.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
