package credits

import (
	"fmt"

	"github.com/reviewpulse/credits-server/internal/model"
)

// RankCostPerKeyword is the flat price of one rank check.
const RankCostPerKeyword int64 = 1

// llmProviderCost is the static per-question price for each supported model
// family. Unknown providers are rejected rather than priced at zero.
var llmProviderCost = map[model.LLMProviderID]int64{
	model.ProviderOpenAI:     1,
	model.ProviderAnthropic:  1,
	model.ProviderGemini:     1,
	model.ProviderPerplexity: 1,
}

// RankCheckCost prices one rank-tracking run: one credit per keyword.
func RankCheckCost(keywordCount int) (int64, error) {
	if keywordCount <= 0 {
		return 0, fmt.Errorf("keyword count must be positive, got %d", keywordCount)
	}
	return int64(keywordCount) * RankCostPerKeyword, nil
}

// LLMVisibilityCost prices one LLM-visibility run: every question is asked to
// every provider, so cost = questions x sum of per-provider prices.
func LLMVisibilityCost(questionCount int, providers []model.LLMProviderID) (int64, error) {
	if questionCount <= 0 {
		return 0, fmt.Errorf("question count must be positive, got %d", questionCount)
	}
	if len(providers) == 0 {
		return 0, fmt.Errorf("provider set must not be empty")
	}

	var perQuestion int64
	for _, p := range providers {
		cost, ok := llmProviderCost[p]
		if !ok {
			return 0, fmt.Errorf("unknown provider %q", p)
		}
		perQuestion += cost
	}

	return int64(questionCount) * perQuestion, nil
}
