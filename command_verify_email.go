package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Email      string `json:"email"`
	Code       string `json:"otp"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailResponse struct {
	User *User
	// AlreadyVerified is true when the account was active before this
	// call. Verifying an active account with a valid code succeeds,
	// repeating a consumed code does not.
	AlreadyVerified bool
}

// VerifyEmailHandler moves a pending account to active. The code comparison
// and the activation run in one transaction so a verified code cannot be
// consumed twice.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewVerifyEmailHandler creates a handler with sane defaults.
func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var noCode error
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}

		if err := h.repo.Codes().VerifyTx(ctx, tx, user.ID, event.Code); err != nil {
			if errors.Is(err, ErrNoCodeIssued) {
				// VerifyTx may have discarded an expired row. Commit so
				// the discard outlives the failed verification.
				noCode = err
				return nil
			}
			return err
		}

		resp.AlreadyVerified = user.Active

		if !user.Active {
			if err := h.repo.Users().ActivateTx(ctx, tx, user.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate user")
			}
			user.Active = true
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification failed")
	}

	if noCode != nil {
		return noCode
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
