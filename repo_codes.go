package accounts

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CodeDigits fixes the one time code width. Five digits matches the space
// the legacy system drew from (10000..99999).
const CodeDigits = 5

const codeMin = 10000
const codeSpan = 90000

// OneTimeCodes is the ledger guaranteeing at most one live code per user.
// Issue replaces any previous code; Verify consumes on match and leaves the
// row intact on mismatch. Expired codes behave exactly like absent ones.
type OneTimeCodes interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (string, error)

	Verify(ctx context.Context, userID uuid.UUID, submitted string) error
	VerifyTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, submitted string) error

	ActiveFor(ctx context.Context, userID uuid.UUID) (*OneTimeCode, error)
}

type oneTimeCodes struct {
	db  *bun.DB
	ttl time.Duration
	now func() time.Time
}

var _ OneTimeCodes = (*oneTimeCodes)(nil)

// CodesOption customizes ledger construction.
type CodesOption func(*oneTimeCodes)

// WithCodesClock injects a custom clock (useful for tests).
func WithCodesClock(clock func() time.Time) CodesOption {
	return func(c *oneTimeCodes) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewOneTimeCodesRepository builds the ledger. ttl is the validity window
// enforced during Verify; zero disables the age check.
func NewOneTimeCodesRepository(db *bun.DB, ttl time.Duration, opts ...CodesOption) OneTimeCodes {
	repo := &oneTimeCodes{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (r *oneTimeCodes) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	return r.IssueTx(ctx, r.db, userID)
}

// IssueTx generates a fresh code and upserts the ledger row. Concurrent
// issuance for the same user is last write wins: the UNIQUE user_id
// column plus ON CONFLICT keeps the row count at one.
func (r *oneTimeCodes) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one time code")
	}

	issuedAt := r.now()
	record := &OneTimeCode{
		ID:       uuid.New(),
		UserID:   userID,
		Code:     code,
		IssuedAt: &issuedAt,
	}

	_, err = tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("code = EXCLUDED.code").
		Set("issued_at = EXCLUDED.issued_at").
		Exec(ctx)

	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store one time code")
	}

	return code, nil
}

func (r *oneTimeCodes) Verify(ctx context.Context, userID uuid.UUID, submitted string) error {
	return r.VerifyTx(ctx, r.db, userID, submitted)
}

// VerifyTx checks submitted against the live code. The consume is a guarded
// DELETE matching both user and code value, so two racing calls cannot both
// observe a valid row and both succeed: the second delete affects zero rows.
func (r *oneTimeCodes) VerifyTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, submitted string) error {
	record := &OneTimeCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrNoCodeIssued
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read one time code")
	}

	if record.ExpiredAt(r.now(), r.ttl) {
		// The legacy system promised a five minute window without checking
		// it. Here the window is enforced: a stale code is dropped and the
		// caller sees the same failure as when no code exists.
		if _, err := tx.NewDelete().
			Model((*OneTimeCode)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discard expired code")
		}
		return ErrNoCodeIssued
	}

	if record.Code != submitted {
		return ErrCodeMismatch
	}

	res, err := tx.NewDelete().
		Model((*OneTimeCode)(nil)).
		Where("user_id = ? AND code = ?", userID, submitted).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume one time code")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Another request consumed or replaced the code between our read
		// and the delete.
		return ErrNoCodeIssued
	}

	return nil
}

// ActiveFor returns the live ledger row for a user, or ErrNoCodeIssued.
func (r *oneTimeCodes) ActiveFor(ctx context.Context, userID uuid.UUID) (*OneTimeCode, error) {
	record := &OneTimeCode{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNoCodeIssued
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read one time code")
	}

	return record, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", codeMin+n.Int64()), nil
}
