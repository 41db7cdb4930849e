package credits

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpulse/credits-server/internal/database"
	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/repository"
)

// passthroughTx runs the transactional section directly. The fakes below are
// stateful, so the section's reads and writes behave like a real transaction
// executed alone.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type fakeBalanceRepo struct {
	balances map[string]*model.CreditBalance
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{balances: make(map[string]*model.CreditBalance)}
}

func (f *fakeBalanceRepo) set(accountID string, included, purchased int64) {
	f.balances[accountID] = &model.CreditBalance{
		AccountID:        accountID,
		IncludedCredits:  included,
		PurchasedCredits: purchased,
	}
}

func (f *fakeBalanceRepo) FindByAccountID(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	b, ok := f.balances[accountID]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBalanceRepo) FindByAccountIDForUpdate(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	return f.FindByAccountID(ctx, accountID)
}

func (f *fakeBalanceRepo) EnsureExists(ctx context.Context, accountID string) error {
	if _, ok := f.balances[accountID]; !ok {
		f.set(accountID, 0, 0)
	}
	return nil
}

func (f *fakeBalanceRepo) UpdatePools(ctx context.Context, accountID string, included, purchased int64) error {
	if included < 0 || purchased < 0 {
		return fmt.Errorf("check constraint violated: pools must be non-negative")
	}
	f.set(accountID, included, purchased)
	return nil
}

func (f *fakeBalanceRepo) WithTx(tx *sqlx.Tx) repository.BalanceRepository {
	return f
}

type fakeTransactionRepo struct {
	byKey map[string]*model.CreditTransaction
	order []string
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byKey: make(map[string]*model.CreditTransaction)}
}

func (f *fakeTransactionRepo) Insert(ctx context.Context, params model.CreateTransactionParams) (bool, error) {
	if _, ok := f.byKey[params.IdempotencyKey]; ok {
		return false, nil
	}
	f.byKey[params.IdempotencyKey] = &model.CreditTransaction{
		ID:             fmt.Sprintf("txn-%d", len(f.order)+1),
		IdempotencyKey: params.IdempotencyKey,
		AccountID:      params.AccountID,
		Amount:         params.Amount,
		FeatureType:    params.FeatureType,
		Metadata:       params.Metadata,
		Description:    params.Description,
		CreatedAt:      time.Now(),
	}
	f.order = append(f.order, params.IdempotencyKey)
	return true, nil
}

func (f *fakeTransactionRepo) FindByKey(ctx context.Context, idempotencyKey string) (*model.CreditTransaction, error) {
	txn, ok := f.byKey[idempotencyKey]
	if !ok {
		return nil, nil
	}
	return txn, nil
}

func (f *fakeTransactionRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error) {
	var txns []model.CreditTransaction
	for i := len(f.order) - 1; i >= 0; i-- {
		txn := f.byKey[f.order[i]]
		if txn.AccountID == accountID {
			txns = append(txns, *txn)
		}
	}
	if offset >= len(txns) {
		return nil, nil
	}
	txns = txns[offset:]
	if limit < len(txns) {
		txns = txns[:limit]
	}
	return txns, nil
}

func (f *fakeTransactionRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	count := 0
	for _, txn := range f.byKey {
		if txn.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (f *fakeTransactionRepo) WithTx(tx *sqlx.Tx) repository.TransactionRepository {
	return f
}

func newTestLedger() (*Ledger, *fakeBalanceRepo, *fakeTransactionRepo) {
	balances := newFakeBalanceRepo()
	txns := newFakeTransactionRepo()
	return NewLedger(passthroughTx{}, balances, txns), balances, txns
}

func TestLedgerDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("drains included pool before purchased", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 10, 5)

		err := ledger.Debit(ctx, "acc-1", 12, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		})
		require.NoError(t, err)

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(0), balance.IncludedCredits)
		assert.Equal(t, int64(3), balance.PurchasedCredits)
	})

	t.Run("included pool alone covers small debit", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 10, 5)

		err := ledger.Debit(ctx, "acc-1", 4, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		})
		require.NoError(t, err)

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(6), balance.IncludedCredits)
		assert.Equal(t, int64(5), balance.PurchasedCredits)
	})

	t.Run("records the pool split in metadata", func(t *testing.T) {
		ledger, balances, txns := newTestLedger()
		balances.set("acc-1", 3, 9)

		err := ledger.Debit(ctx, "acc-1", 8, DebitParams{
			FeatureType:    model.FeatureLLMVisibility,
			IdempotencyKey: "debit-1",
		})
		require.NoError(t, err)

		txn := txns.byKey["debit-1"]
		require.NotNil(t, txn)
		assert.Equal(t, int64(-8), txn.Amount)

		included, purchased := decodeSplit(txn.Metadata)
		assert.Equal(t, int64(3), included)
		assert.Equal(t, int64(5), purchased)
	})

	t.Run("rejects when total is short", func(t *testing.T) {
		ledger, balances, txns := newTestLedger()
		balances.set("acc-1", 2, 3)

		err := ledger.Debit(ctx, "acc-1", 6, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		})

		var insufficient *InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(6), insufficient.Required)
		assert.Equal(t, int64(5), insufficient.Available)

		// Nothing written, nothing changed.
		assert.Empty(t, txns.byKey)
		assert.Equal(t, int64(2), balances.balances["acc-1"].IncludedCredits)
		assert.Equal(t, int64(3), balances.balances["acc-1"].PurchasedCredits)
	})

	t.Run("rejects when balance row is missing", func(t *testing.T) {
		ledger, _, _ := newTestLedger()

		err := ledger.Debit(ctx, "ghost", 1, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		})

		var insufficient *InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(0), insufficient.Available)
	})

	t.Run("replay of the same key charges once", func(t *testing.T) {
		ledger, balances, txns := newTestLedger()
		balances.set("acc-1", 10, 0)

		params := DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		}
		require.NoError(t, ledger.Debit(ctx, "acc-1", 4, params))

		err := ledger.Debit(ctx, "acc-1", 4, params)
		assert.ErrorIs(t, err, ErrIdempotencyReplay)

		assert.Equal(t, int64(6), balances.balances["acc-1"].IncludedCredits)
		assert.Len(t, txns.byKey, 1)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		ledger, _, _ := newTestLedger()
		assert.Error(t, ledger.Debit(ctx, "acc-1", 0, DebitParams{IdempotencyKey: "k"}))
		assert.Error(t, ledger.Debit(ctx, "acc-1", -5, DebitParams{IdempotencyKey: "k"}))
	})

	t.Run("rejects empty idempotency key", func(t *testing.T) {
		ledger, _, _ := newTestLedger()
		assert.Error(t, ledger.Debit(ctx, "acc-1", 1, DebitParams{}))
	})
}

func TestLedgerRefundFeature(t *testing.T) {
	ctx := context.Background()

	t.Run("reverses the exact pool split of the debit", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 3, 9)

		require.NoError(t, ledger.Debit(ctx, "acc-1", 8, DebitParams{
			FeatureType:    model.FeatureLLMVisibility,
			IdempotencyKey: "debit-1",
		}))
		// 3 came from included, 5 from purchased.

		require.NoError(t, ledger.RefundFeature(ctx, "acc-1", 8, "debit-1", RefundParams{
			FeatureType: model.FeatureLLMVisibility,
		}))

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(3), balance.IncludedCredits)
		assert.Equal(t, int64(9), balance.PurchasedCredits)
	})

	t.Run("debit then full refund restores the starting balance", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 20, 7)

		require.NoError(t, ledger.Debit(ctx, "acc-1", 15, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		}))
		require.NoError(t, ledger.RefundFeature(ctx, "acc-1", 15, "debit-1", RefundParams{
			FeatureType: model.FeatureRankTracking,
		}))

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(20), balance.IncludedCredits)
		assert.Equal(t, int64(7), balance.PurchasedCredits)
	})

	t.Run("missing debit row credits the purchased pool", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 0, 0)

		require.NoError(t, ledger.RefundFeature(ctx, "acc-1", 5, "unknown-debit", RefundParams{
			FeatureType: model.FeatureRankTracking,
		}))

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(0), balance.IncludedCredits)
		assert.Equal(t, int64(5), balance.PurchasedCredits)
	})

	t.Run("refund replay credits once", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 10, 0)

		require.NoError(t, ledger.Debit(ctx, "acc-1", 6, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		}))
		require.NoError(t, ledger.RefundFeature(ctx, "acc-1", 6, "debit-1", RefundParams{
			FeatureType: model.FeatureRankTracking,
		}))

		err := ledger.RefundFeature(ctx, "acc-1", 6, "debit-1", RefundParams{
			FeatureType: model.FeatureRankTracking,
		})
		assert.ErrorIs(t, err, ErrIdempotencyReplay)

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(10), balance.IncludedCredits)
		assert.Equal(t, int64(0), balance.PurchasedCredits)
	})

	t.Run("creates the balance row when absent", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()

		require.NoError(t, ledger.RefundFeature(ctx, "new-account", 3, "debit-1", RefundParams{
			FeatureType: model.FeatureRankTracking,
		}))

		balance := balances.balances["new-account"]
		require.NotNil(t, balance)
		assert.Equal(t, int64(3), balance.PurchasedCredits)
	})

	t.Run("refund row key carries the suffix", func(t *testing.T) {
		ledger, balances, txns := newTestLedger()
		balances.set("acc-1", 5, 0)

		require.NoError(t, ledger.Debit(ctx, "acc-1", 5, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: "debit-1",
		}))
		require.NoError(t, ledger.RefundFeature(ctx, "acc-1", 5, "debit-1", RefundParams{
			FeatureType: model.FeatureRankTracking,
		}))

		refund := txns.byKey["debit-1"+RefundKeySuffix]
		require.NotNil(t, refund)
		assert.Equal(t, int64(5), refund.Amount)
	})
}

func TestLedgerGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the purchased pool", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()

		require.NoError(t, ledger.Grant(ctx, "acc-1", 100, model.PoolPurchased, "grant-1", "top-up"))

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(0), balance.IncludedCredits)
		assert.Equal(t, int64(100), balance.PurchasedCredits)
	})

	t.Run("credits the included pool", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 5, 5)

		require.NoError(t, ledger.Grant(ctx, "acc-1", 50, model.PoolIncluded, "grant-1", "monthly plan"))

		balance := balances.balances["acc-1"]
		assert.Equal(t, int64(55), balance.IncludedCredits)
		assert.Equal(t, int64(5), balance.PurchasedCredits)
	})

	t.Run("replay applies once", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()

		require.NoError(t, ledger.Grant(ctx, "acc-1", 100, model.PoolPurchased, "grant-1", ""))
		err := ledger.Grant(ctx, "acc-1", 100, model.PoolPurchased, "grant-1", "")
		assert.ErrorIs(t, err, ErrIdempotencyReplay)

		assert.Equal(t, int64(100), balances.balances["acc-1"].PurchasedCredits)
	})

	t.Run("rejects unknown pool", func(t *testing.T) {
		ledger, _, _ := newTestLedger()
		assert.Error(t, ledger.Grant(ctx, "acc-1", 10, "bonus", "grant-1", ""))
	})
}

func TestLedgerGetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("missing account reads as zero", func(t *testing.T) {
		ledger, _, _ := newTestLedger()

		balance, err := ledger.GetBalance(ctx, "ghost")
		require.NoError(t, err)
		assert.Equal(t, "ghost", balance.AccountID)
		assert.Equal(t, int64(0), balance.TotalCredits())
	})

	t.Run("existing account reads through", func(t *testing.T) {
		ledger, balances, _ := newTestLedger()
		balances.set("acc-1", 4, 6)

		balance, err := ledger.GetBalance(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), balance.TotalCredits())
	})
}

func TestLedgerCheckCredits(t *testing.T) {
	ctx := context.Background()
	ledger, balances, _ := newTestLedger()
	balances.set("acc-1", 3, 2)

	t.Run("affordable", func(t *testing.T) {
		check, err := ledger.CheckCredits(ctx, "acc-1", 5)
		require.NoError(t, err)
		assert.True(t, check.HasCredits)
		assert.Equal(t, int64(5), check.Available)
	})

	t.Run("not affordable", func(t *testing.T) {
		check, err := ledger.CheckCredits(ctx, "acc-1", 6)
		require.NoError(t, err)
		assert.False(t, check.HasCredits)
		assert.Equal(t, int64(6), check.Required)
	})

	t.Run("unknown account is not affordable", func(t *testing.T) {
		check, err := ledger.CheckCredits(ctx, "ghost", 1)
		require.NoError(t, err)
		assert.False(t, check.HasCredits)
		assert.Equal(t, int64(0), check.Available)
	})
}

func TestLedgerListTransactions(t *testing.T) {
	ctx := context.Background()
	ledger, balances, _ := newTestLedger()
	balances.set("acc-1", 100, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Debit(ctx, "acc-1", 1, DebitParams{
			FeatureType:    model.FeatureRankTracking,
			IdempotencyKey: fmt.Sprintf("debit-%d", i),
		}))
	}

	txns, total, err := ledger.ListTransactions(ctx, "acc-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, txns, 2)
	// Newest first.
	assert.Equal(t, "debit-2", txns[0].IdempotencyKey)
}

func TestInsufficientCreditsError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &InsufficientCreditsError{Required: 9, Available: 4})

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Contains(t, insufficient.Error(), "required 9")
	assert.Contains(t, insufficient.Error(), "available 4")
}
