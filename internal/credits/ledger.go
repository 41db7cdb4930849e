package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/database"
	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/repository"
)

// RefundKeySuffix is appended to a debit's idempotency key to form the key of
// its refund, keeping the refund itself idempotent and joinable to the debit.
const RefundKeySuffix = ":refund"

// ErrIdempotencyReplay reports that the idempotency key was already consumed.
// The original mutation stands; callers treat this as a successful no-op.
var ErrIdempotencyReplay = errors.New("idempotency key already consumed")

// InsufficientCreditsError is an expected business outcome, distinguishable
// from infrastructure failures which are plain errors.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// CreditCheck is the result of a non-mutating affordability pre-check. It is
// advisory only; Debit re-verifies inside its atomic section.
type CreditCheck struct {
	HasCredits bool  `json:"hasCredits"`
	Required   int64 `json:"required"`
	Available  int64 `json:"available"`
}

type DebitParams struct {
	FeatureType    model.FeatureType
	Metadata       map[string]any
	IdempotencyKey string
	Description    string
}

type RefundParams struct {
	FeatureType model.FeatureType
	Metadata    map[string]any
	Description string
}

// Ledger owns all balance mutations. Debit and refund run as one database
// transaction each: the append-only transaction row is inserted first (its
// unique key is the replay detector), then the balance row is locked,
// re-verified and rewritten.
type Ledger struct {
	tx       database.TxRunner
	balances repository.BalanceRepository
	txns     repository.TransactionRepository
}

func NewLedger(tx database.TxRunner, balances repository.BalanceRepository, txns repository.TransactionRepository) *Ledger {
	return &Ledger{
		tx:       tx,
		balances: balances,
		txns:     txns,
	}
}

// EnsureBalance lazily creates a zero balance. No error when one exists.
func (l *Ledger) EnsureBalance(ctx context.Context, accountID string) error {
	return l.balances.EnsureExists(ctx, accountID)
}

func (l *Ledger) GetBalance(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	balance, err := l.balances.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &model.CreditBalance{AccountID: accountID}, nil
	}
	return balance, nil
}

// CheckCredits answers "could this account afford the amount right now".
// Callers must still treat the subsequent Debit as authoritative.
func (l *Ledger) CheckCredits(ctx context.Context, accountID string, required int64) (*CreditCheck, error) {
	balance, err := l.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	available := balance.TotalCredits()
	return &CreditCheck{
		HasCredits: available >= required,
		Required:   required,
		Available:  available,
	}, nil
}

// Debit atomically charges amount against the account, draining the included
// pool before the purchased pool.
//
// Returns ErrIdempotencyReplay when the key was already consumed (no balance
// change) and *InsufficientCreditsError when the locked balance cannot cover
// the amount (no row written, no balance change).
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64, params DebitParams) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if params.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}

	return l.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances := l.balances.WithTx(tx)
		txns := l.txns.WithTx(tx)

		balance, err := balances.FindByAccountIDForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance == nil {
			return &InsufficientCreditsError{Required: amount, Available: 0}
		}
		if balance.TotalCredits() < amount {
			return &InsufficientCreditsError{Required: amount, Available: balance.TotalCredits()}
		}

		fromIncluded := min(balance.IncludedCredits, amount)
		fromPurchased := amount - fromIncluded

		metadata, err := encodeMetadata(params.Metadata, fromIncluded, fromPurchased)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		inserted, err := txns.Insert(ctx, model.CreateTransactionParams{
			IdempotencyKey: params.IdempotencyKey,
			AccountID:      accountID,
			Amount:         -amount,
			FeatureType:    params.FeatureType,
			Metadata:       metadata,
			Description:    params.Description,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			return ErrIdempotencyReplay
		}

		if err := balances.UpdatePools(ctx, accountID, balance.IncludedCredits-fromIncluded, balance.PurchasedCredits-fromPurchased); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		log.Info().
			Str("accountId", accountID).
			Int64("amount", amount).
			Str("feature", string(params.FeatureType)).
			Str("idempotencyKey", params.IdempotencyKey).
			Msg("credits debited")

		return nil
	})
}

// RefundFeature reverses a prior debit identified by its logical idempotency
// key, restoring the purchased pool before the included pool. The refund row
// uses the debit key plus RefundKeySuffix and is itself idempotent.
func (l *Ledger) RefundFeature(ctx context.Context, accountID string, amount int64, idempotencyKey string, params RefundParams) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}

	refundKey := idempotencyKey + RefundKeySuffix

	return l.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances := l.balances.WithTx(tx)
		txns := l.txns.WithTx(tx)

		// The original debit recorded its pool split; the refund reverses it.
		// A missing debit row credits the purchased pool, which never expires.
		toPurchased := amount
		toIncluded := int64(0)
		if original, err := txns.FindByKey(ctx, idempotencyKey); err != nil {
			return fmt.Errorf("find original debit: %w", err)
		} else if original != nil {
			_, purchasedSpent := decodeSplit(original.Metadata)
			toPurchased = min(amount, purchasedSpent)
			toIncluded = amount - toPurchased
		}

		metadata, err := encodeMetadata(params.Metadata, -toIncluded, -toPurchased)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		inserted, err := txns.Insert(ctx, model.CreateTransactionParams{
			IdempotencyKey: refundKey,
			AccountID:      accountID,
			Amount:         amount,
			FeatureType:    params.FeatureType,
			Metadata:       metadata,
			Description:    params.Description,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			return ErrIdempotencyReplay
		}

		if err := balances.EnsureExists(ctx, accountID); err != nil {
			return fmt.Errorf("ensure balance: %w", err)
		}
		balance, err := balances.FindByAccountIDForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance == nil {
			return fmt.Errorf("balance missing after ensure for account %s", accountID)
		}

		if err := balances.UpdatePools(ctx, accountID, balance.IncludedCredits+toIncluded, balance.PurchasedCredits+toPurchased); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		log.Info().
			Str("accountId", accountID).
			Int64("amount", amount).
			Str("idempotencyKey", refundKey).
			Msg("credits refunded")

		return nil
	})
}

// Grant idempotently tops up one pool. Billing webhooks use it for purchased
// top-ups; subscription replenishment would target the included pool.
func (l *Ledger) Grant(ctx context.Context, accountID string, amount int64, pool model.CreditPool, idempotencyKey, description string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if pool != model.PoolIncluded && pool != model.PoolPurchased {
		return fmt.Errorf("unknown credit pool %q", pool)
	}

	return l.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances := l.balances.WithTx(tx)
		txns := l.txns.WithTx(tx)

		metadata, err := encodeMetadata(map[string]any{"pool": string(pool)}, 0, 0)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		inserted, err := txns.Insert(ctx, model.CreateTransactionParams{
			IdempotencyKey: idempotencyKey,
			AccountID:      accountID,
			Amount:         amount,
			FeatureType:    model.FeatureCreditGrant,
			Metadata:       metadata,
			Description:    description,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			return ErrIdempotencyReplay
		}

		if err := balances.EnsureExists(ctx, accountID); err != nil {
			return fmt.Errorf("ensure balance: %w", err)
		}
		balance, err := balances.FindByAccountIDForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance == nil {
			return fmt.Errorf("balance missing after ensure for account %s", accountID)
		}

		included, purchased := balance.IncludedCredits, balance.PurchasedCredits
		if pool == model.PoolIncluded {
			included += amount
		} else {
			purchased += amount
		}

		if err := balances.UpdatePools(ctx, accountID, included, purchased); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		log.Info().
			Str("accountId", accountID).
			Int64("amount", amount).
			Str("pool", string(pool)).
			Msg("credits granted")

		return nil
	})
}

// ListTransactions pages the audit trail, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, int, error) {
	txns, err := l.txns.FindByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.txns.CountByAccountID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// encodeMetadata merges the caller's opaque metadata with the pool split the
// ledger needs to reverse a debit exactly.
func encodeMetadata(callerMeta map[string]any, includedSpent, purchasedSpent int64) (*json.RawMessage, error) {
	merged := make(map[string]any, len(callerMeta)+2)
	for k, v := range callerMeta {
		merged[k] = v
	}
	merged["includedSpent"] = includedSpent
	merged["purchasedSpent"] = purchasedSpent

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(data)
	return &raw, nil
}

func decodeSplit(metadata *json.RawMessage) (includedSpent, purchasedSpent int64) {
	if metadata == nil {
		return 0, 0
	}
	var decoded struct {
		IncludedSpent  int64 `json:"includedSpent"`
		PurchasedSpent int64 `json:"purchasedSpent"`
	}
	if err := json.Unmarshal(*metadata, &decoded); err != nil {
		return 0, 0
	}
	return decoded.IncludedSpent, decoded.PurchasedSpent
}
