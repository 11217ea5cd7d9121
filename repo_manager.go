package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Codes() OneTimeCodes
}

type mngr struct {
	db    *bun.DB
	users Users
	codes OneTimeCodes
}

// NewRepositoryManager wires the account store and the one time code ledger
// over a shared bun handle. codeTTL is the verification validity window.
func NewRepositoryManager(db *bun.DB, codeTTL time.Duration, opts ...CodesOption) RepositoryManager {
	return &mngr{
		db:    db,
		users: NewUsersRepository(db),
		codes: NewOneTimeCodesRepository(db, codeTTL, opts...),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.codes == nil {
		return errors.New("repository codes should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Codes() OneTimeCodes {
	return m.codes
}
