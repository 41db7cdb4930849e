package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/reviewpulse/credits-server/internal/errors"
	"github.com/reviewpulse/credits-server/internal/httputil"
	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/runner"
)

// PassRunner is the slice of the scheduled runner the cron entry points use.
type PassRunner interface {
	RunRankPass(ctx context.Context) (*runner.Summary, error)
	RunLLMPass(ctx context.Context) (*runner.Summary, error)
}

// PassLock is an acquired-or-busy advisory lock around one pass.
type PassLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds the pass lock for one feature family.
type LockFactory func(feature model.FeatureType) PassLock

// CronHandler exposes the entry points the external scheduler fires hourly.
// Authentication happens in middleware before any ledger access.
type CronHandler struct {
	runner PassRunner
	locks  LockFactory
}

func NewCronHandler(passRunner PassRunner, locks LockFactory) *CronHandler {
	return &CronHandler{
		runner: passRunner,
		locks:  locks,
	}
}

func (h *CronHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/rank-checks", h.RankChecks)
	r.Post("/llm-checks", h.LLMChecks)
	return r
}

func (h *CronHandler) RankChecks(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, model.FeatureRankTracking, h.runner.RunRankPass)
}

func (h *CronHandler) LLMChecks(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, model.FeatureLLMVisibility, h.runner.RunLLMPass)
}

func (h *CronHandler) run(w http.ResponseWriter, r *http.Request, feature model.FeatureType, pass func(context.Context) (*runner.Summary, error)) {
	ctx := r.Context()

	lock := h.locks(feature)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		// The lock is advisory; a broken Redis must not stop billing runs.
		log.Warn().Err(err).Str("feature", string(feature)).Msg("pass lock unavailable, running unlocked")
	} else if !acquired {
		httputil.WriteError(w, apperrors.PassInProgress(string(feature)))
		return
	} else {
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Warn().Err(err).Str("feature", string(feature)).Msg("pass lock release failed")
			}
		}()
	}

	summary, err := pass(ctx)
	if err != nil {
		log.Error().Err(err).Str("feature", string(feature)).Msg("scheduled pass aborted")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
