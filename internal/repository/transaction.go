package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/reviewpulse/credits-server/internal/model"
)

type TransactionRepository interface {
	// Insert appends a ledger row. It returns false without error when the
	// idempotency key was already consumed, which is the replay signal.
	Insert(ctx context.Context, params model.CreateTransactionParams) (bool, error)
	FindByKey(ctx context.Context, idempotencyKey string) (*model.CreditTransaction, error)
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error)
	CountByAccountID(ctx context.Context, accountID string) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) TransactionRepository
}

type transactionRepo struct {
	db sqlxDB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) WithTx(tx *sqlx.Tx) TransactionRepository {
	return &transactionRepo{db: tx}
}

func (r *transactionRepo) Insert(ctx context.Context, params model.CreateTransactionParams) (bool, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO credit_transactions (idempotency_key, account_id, amount, feature_type, metadata, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`, params.IdempotencyKey, params.AccountID, params.Amount, params.FeatureType, params.Metadata, params.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *transactionRepo) FindByKey(ctx context.Context, idempotencyKey string) (*model.CreditTransaction, error) {
	var txn model.CreditTransaction
	err := r.db.GetContext(ctx, &txn, `
		SELECT * FROM credit_transactions WHERE idempotency_key = $1
	`, idempotencyKey)
	return HandleNotFound(&txn, err)
}

func (r *transactionRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error) {
	var txns []model.CreditTransaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM credit_transactions WHERE account_id = $1
	`, accountID)
	return count, err
}
