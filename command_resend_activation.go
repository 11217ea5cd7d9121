package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ResendActivationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ResendActivationResponse)
}

func (e ResendActivationMessage) Type() string { return "user.resend_activation" }

type ResendActivationResponse struct {
	AlreadyVerified bool
}

// ResendActivationHandler re-issues the activation code, replacing whatever
// code was live, and mails it again. An unknown email reports ErrUserNotFound
// to the caller, which leaks address existence; callers that care should map
// the error to a generic response at the edge.
type ResendActivationHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	logger   Logger
}

// NewResendActivationHandler creates a handler with sane defaults.
func NewResendActivationHandler(repo RepositoryManager, notifier *Notifier) *ResendActivationHandler {
	return &ResendActivationHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ResendActivationHandler) WithLogger(logger Logger) *ResendActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendActivationHandler) Execute(ctx context.Context, event ResendActivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationHandler) execute(ctx context.Context, event ResendActivationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		return err
	}

	if user.Active {
		if event.OnResponse != nil {
			event.OnResponse(&ResendActivationResponse{AlreadyVerified: true})
		}
		return nil
	}

	code, err := h.repo.Codes().Issue(ctx, user.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-issue activation code")
	}

	if h.notifier != nil {
		h.notifier.SendVerificationCode(user.FirstName, user.Email, code)
	}

	if event.OnResponse != nil {
		event.OnResponse(&ResendActivationResponse{})
	}

	return nil
}
