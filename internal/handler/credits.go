package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reviewpulse/credits-server/internal/credits"
	apperrors "github.com/reviewpulse/credits-server/internal/errors"
	"github.com/reviewpulse/credits-server/internal/httputil"
	"github.com/reviewpulse/credits-server/internal/model"
)

// CreditsHandler is the service-to-service surface of the ledger: balance
// reads, the audit trail, and idempotent top-up grants from the billing tier.
type CreditsHandler struct {
	ledger *credits.Ledger
}

func NewCreditsHandler(ledger *credits.Ledger) *CreditsHandler {
	return &CreditsHandler{ledger: ledger}
}

func (h *CreditsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetBalance)
	r.Get("/transactions", h.ListTransactions)
	r.Post("/grants", h.Grant)
	return r
}

func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("accountID"))
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":        balance.AccountID,
		"includedCredits":  balance.IncludedCredits,
		"purchasedCredits": balance.PurchasedCredits,
		"totalCredits":     balance.TotalCredits(),
	})
}

func (h *CreditsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("accountID"))
		return
	}

	limit, offset := pageParams(r)
	txns, total, err := h.ledger.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type grantRequest struct {
	Amount         int64  `json:"amount"`
	Pool           string `json:"pool"`
	IdempotencyKey string `json:"idempotencyKey"`
	Description    string `json:"description"`
}

func (h *CreditsHandler) Grant(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("accountID"))
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Amount <= 0 {
		httputil.WriteError(w, apperrors.InvalidInput("amount", "must be positive"))
		return
	}
	if req.IdempotencyKey == "" {
		httputil.WriteError(w, apperrors.MissingRequired("idempotencyKey"))
		return
	}

	pool := model.CreditPool(req.Pool)
	if pool == "" {
		pool = model.PoolPurchased
	}
	if pool != model.PoolIncluded && pool != model.PoolPurchased {
		httputil.WriteError(w, apperrors.InvalidInput("pool", "must be included or purchased"))
		return
	}

	err := h.ledger.Grant(r.Context(), accountID, req.Amount, pool, req.IdempotencyKey, req.Description)
	replayed := errors.Is(err, credits.ErrIdempotencyReplay)
	if err != nil && !replayed {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":        balance.AccountID,
		"includedCredits":  balance.IncludedCredits,
		"purchasedCredits": balance.PurchasedCredits,
		"totalCredits":     balance.TotalCredits(),
		"alreadyApplied":   replayed,
	})
}
