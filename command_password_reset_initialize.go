package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Success bool
}

// InitializePasswordResetHandler starts the reset flow. Validate holds the
// existence check and nothing else, so callers can check a request as many
// times as they like without mail going out; Execute performs the side
// effects (code issuance plus delivery) exactly once per call.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, notifier *Notifier) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Validate checks that the email belongs to a registered user. It is free
// of side effects and safe to call repeatedly.
func (h *InitializePasswordResetHandler) Validate(ctx context.Context, event InitializePasswordResetMessage) (*User, error) {
	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.Validate(ctx, event)
	if err != nil {
		return err
	}

	code, err := h.repo.Codes().Issue(ctx, user.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset code")
	}

	if h.notifier != nil {
		h.notifier.SendPasswordResetCode(user.FirstName, user.Email, code)
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Success: true})
	}

	return nil
}
