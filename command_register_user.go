package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone_number"`
	Password  string   `json:"password"`
	Role      UserRole `json:"-"`
	// Activated pre-sets the active flag; used by the admin registration
	// path and by social sign-in where identity proof already happened.
	Activated  bool `json:"-"`
	UseHashid  bool `json:"-"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User *User
}

// RegisterUserHandler creates the account row and, for non activated users,
// issues the activation code and mails it. The transaction spans user
// creation only: a failed issuance leaves a registered inactive user who can
// request a resend.
type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, notifier *Notifier) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Role = event.Role
		user.Active = event.Activated
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	// The code is issued outside the registration transaction. If this
	// fails the user still exists and can request a resend.
	if !user.Active {
		code, err := h.repo.Codes().Issue(ctx, user.ID)
		if err != nil {
			h.logger.Error("failed to issue activation code for %s: %v", user.Email, err)
		} else if h.notifier != nil {
			h.notifier.SendVerificationCode(user.FirstName, user.Email, code)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user})
	}

	return nil
}
