package model

import (
	"encoding/json"
	"time"
)

// CreditBalance holds one account's two credit pools. Both pools are
// non-negative at all times; every mutation goes through the ledger.
type CreditBalance struct {
	AccountID        string    `db:"account_id" json:"accountId"`
	IncludedCredits  int64     `db:"included_credits" json:"includedCredits"`
	PurchasedCredits int64     `db:"purchased_credits" json:"purchasedCredits"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

func (b *CreditBalance) TotalCredits() int64 {
	return b.IncludedCredits + b.PurchasedCredits
}

// CreditTransaction is one row of the append-only ledger. Negative amounts
// are debits, positive amounts are refunds or grants. The unique idempotency
// key is the replay-detection index.
type CreditTransaction struct {
	ID             string           `db:"id" json:"id"`
	IdempotencyKey string           `db:"idempotency_key" json:"idempotencyKey"`
	AccountID      string           `db:"account_id" json:"accountId"`
	Amount         int64            `db:"amount" json:"amount"`
	FeatureType    FeatureType      `db:"feature_type" json:"featureType"`
	Metadata       *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Description    string           `db:"description" json:"description"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

type CreateTransactionParams struct {
	IdempotencyKey string
	AccountID      string
	Amount         int64
	FeatureType    FeatureType
	Metadata       *json.RawMessage
	Description    string
}
