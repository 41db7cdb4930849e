package model

// FeatureType identifies the metered feature a ledger operation or schedule
// belongs to.
type FeatureType string

const (
	FeatureRankTracking  FeatureType = "rank_tracking"
	FeatureLLMVisibility FeatureType = "llm_visibility"
	FeatureCreditGrant   FeatureType = "credit_grant"
)

type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// LLMProviderID names a supported model family for visibility checks.
type LLMProviderID string

const (
	ProviderOpenAI     LLMProviderID = "openai"
	ProviderAnthropic  LLMProviderID = "anthropic"
	ProviderGemini     LLMProviderID = "gemini"
	ProviderPerplexity LLMProviderID = "perplexity"
)

// CreditPool selects which balance pool a grant credits.
type CreditPool string

const (
	PoolIncluded  CreditPool = "included"
	PoolPurchased CreditPool = "purchased"
)
