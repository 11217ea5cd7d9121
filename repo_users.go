package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Activate(ctx context.Context, id uuid.UUID) error
	ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	AssignRole(ctx context.Context, id uuid.UUID, role UserRole) error
	AssignRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) error

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// ProfilePatch carries the editable profile fields. Nil members are left
// untouched; id, email, role and the audit timestamps are read only.
type ProfilePatch struct {
	FirstName    *string
	LastName     *string
	Phone        *string
	ProfileImage *string
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx creates the user row. The email uniqueness constraint is the
// sole arbiter for concurrent registrations; the loser gets ErrDuplicateEmail
// and no partial state.
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
	}

	return record, nil
}

func (a *users) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	user, err := a.GetByEmailTx(ctx, tx, record.Email)
	if err == nil {
		return user, nil
	}

	if !goerrors.IsNotFound(err) {
		return nil, err
	}

	return a.RegisterTx(ctx, tx, record)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user by email")
	}

	return record, nil
}

func (a *users) Activate(ctx context.Context, id uuid.UUID) error {
	return a.ActivateTx(ctx, a.db, id)
}

func (a *users) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = TRUE").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate user")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// AssignRoleTx sets the role column. Assigning the role a user already has
// is a no-op, which makes the call idempotent.
func (a *users) AssignRole(ctx context.Context, id uuid.UUID, role UserRole) error {
	return a.AssignRoleTx(ctx, a.db, id, role)
}

func (a *users) AssignRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) error {
	if !IsValidRole(role) {
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": role})
	}

	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("user_role = ?", role).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	return err
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (a *users) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error) {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL")

	changed := false
	if patch.FirstName != nil {
		q.Set("first_name = ?", *patch.FirstName)
		changed = true
	}
	if patch.LastName != nil {
		q.Set("last_name = ?", *patch.LastName)
		changed = true
	}
	if patch.Phone != nil {
		q.Set("phone_number = ?", *patch.Phone)
		changed = true
	}
	if patch.ProfileImage != nil {
		q.Set("profile_image = ?", *patch.ProfileImage)
		changed = true
	}

	if changed {
		q.Set("updated_at = ?", time.Now())
		if _, err := q.Exec(ctx); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
		}
	}

	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reload profile")
	}

	return record, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	// NOTE: Updating through the ORM wont reset login_attempt_at and
	// login_attempts back to their zero values, so do it in raw SQL.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, a.db, record, criteria...)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleStudent
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
