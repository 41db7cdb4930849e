package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/provider"
	"github.com/reviewpulse/credits-server/internal/repository"
)

// RankExecutor checks every tracked keyword of a group against the SERP
// provider. Every unit is attempted; per-unit failures are collected, never
// aborted on. Results are persisted as they complete so a crash mid-run keeps
// the finished work.
type RankExecutor struct {
	provider provider.RankProvider
	results  repository.ResultRepository
	delay    time.Duration
}

func NewRankExecutor(p provider.RankProvider, results repository.ResultRepository, delay time.Duration) *RankExecutor {
	return &RankExecutor{
		provider: p,
		results:  results,
		delay:    delay,
	}
}

func (e *RankExecutor) Run(ctx context.Context, group *model.KeywordGroup, keywords []model.TrackedKeyword, targetDomain string) *Result {
	result := &Result{APICost: decimal.Zero}

	for i, kw := range keywords {
		if i > 0 {
			sleep(ctx, e.delay)
		}

		rank, err := e.provider.CheckRank(ctx, kw.Keyword, group.LocationCode, targetDomain, group.Device)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("keyword %q: %v", kw.Keyword, err))
			continue
		}

		if _, err := e.results.CreateRankResult(ctx, model.CreateRankCheckResultParams{
			KeywordID: kw.ID,
			GroupID:   group.ID,
			Position:  rank.Position,
			FoundURL:  rank.FoundURL,
			APICost:   rank.Cost,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("keyword %q: persist result: %v", kw.Keyword, err))
			continue
		}

		result.ChecksPerformed++
		result.APICost = result.APICost.Add(rank.Cost)
	}

	log.Info().
		Str("groupId", group.ID).
		Int("performed", result.ChecksPerformed).
		Int("failed", len(result.Errors)).
		Str("apiCost", result.APICost.String()).
		Msg("rank check run finished")

	return result
}
