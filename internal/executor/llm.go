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

// LLMExecutor asks every question of an LLM keyword to every configured
// provider family. One question/provider pair is one unit.
type LLMExecutor struct {
	registry *provider.Registry
	results  repository.ResultRepository
	delay    time.Duration
}

func NewLLMExecutor(registry *provider.Registry, results repository.ResultRepository, delay time.Duration) *LLMExecutor {
	return &LLMExecutor{
		registry: registry,
		results:  results,
		delay:    delay,
	}
}

func (e *LLMExecutor) Run(ctx context.Context, keyword *model.LLMKeyword, questions []string, targetDomain string) *Result {
	result := &Result{APICost: decimal.Zero}

	first := true
	for _, question := range questions {
		for _, id := range keyword.ProviderIDs() {
			if !first {
				sleep(ctx, e.delay)
			}
			first = false

			p, ok := e.registry.Get(id)
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("provider %q is not configured", id))
				continue
			}

			answer, err := p.Ask(ctx, question, targetDomain)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
				continue
			}

			if _, err := e.results.CreateLLMResult(ctx, model.CreateLLMCheckResultParams{
				LLMKeywordID: keyword.ID,
				Provider:     id,
				Question:     question,
				CitesDomain:  answer.CitesDomain,
				Answer:       answer.Raw,
			}); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: persist result: %v", id, err))
				continue
			}

			result.ChecksPerformed++
		}
	}

	log.Info().
		Str("llmKeywordId", keyword.ID).
		Int("performed", result.ChecksPerformed).
		Int("failed", len(result.Errors)).
		Msg("llm visibility run finished")

	return result
}
