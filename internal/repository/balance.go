package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reviewpulse/credits-server/internal/model"
)

type BalanceRepository interface {
	FindByAccountID(ctx context.Context, accountID string) (*model.CreditBalance, error)
	// FindByAccountIDForUpdate takes the row lock that serializes concurrent
	// spenders of one balance. Only meaningful inside a transaction.
	FindByAccountIDForUpdate(ctx context.Context, accountID string) (*model.CreditBalance, error)
	EnsureExists(ctx context.Context, accountID string) error
	UpdatePools(ctx context.Context, accountID string, included, purchased int64) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) BalanceRepository
}

type balanceRepo struct {
	db sqlxDB
}

func NewBalanceRepository(db *sqlx.DB) BalanceRepository {
	return &balanceRepo{db: db}
}

func (r *balanceRepo) WithTx(tx *sqlx.Tx) BalanceRepository {
	return &balanceRepo{db: tx}
}

func (r *balanceRepo) FindByAccountID(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	var balance model.CreditBalance
	err := r.db.GetContext(ctx, &balance, `
		SELECT * FROM credit_balances WHERE account_id = $1
	`, accountID)
	return HandleNotFound(&balance, err)
}

func (r *balanceRepo) FindByAccountIDForUpdate(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	var balance model.CreditBalance
	err := r.db.GetContext(ctx, &balance, `
		SELECT * FROM credit_balances WHERE account_id = $1 FOR UPDATE
	`, accountID)
	return HandleNotFound(&balance, err)
}

func (r *balanceRepo) EnsureExists(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_balances (account_id, included_credits, purchased_credits)
		VALUES ($1, 0, 0)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	return err
}

func (r *balanceRepo) UpdatePools(ctx context.Context, accountID string, included, purchased int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_balances SET
			included_credits = $2,
			purchased_credits = $3,
			updated_at = $4
		WHERE account_id = $1
	`, accountID, included, purchased, time.Now())
	return err
}
