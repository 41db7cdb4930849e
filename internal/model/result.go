package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RankCheckResult is one keyword's outcome for one pass. Position is nil when
// the target domain was not found in the tracked range.
type RankCheckResult struct {
	ID        string          `db:"id" json:"id"`
	KeywordID string          `db:"keyword_id" json:"keywordId"`
	GroupID   string          `db:"group_id" json:"groupId"`
	Position  *int            `db:"position" json:"position,omitempty"`
	FoundURL  *string         `db:"found_url" json:"foundUrl,omitempty"`
	APICost   decimal.Decimal `db:"api_cost" json:"apiCost"`
	CheckedAt time.Time       `db:"checked_at" json:"checkedAt"`
}

type CreateRankCheckResultParams struct {
	KeywordID string
	GroupID   string
	Position  *int
	FoundURL  *string
	APICost   decimal.Decimal
}

// LLMCheckResult is one question/provider pair's outcome for one pass.
type LLMCheckResult struct {
	ID           string        `db:"id" json:"id"`
	LLMKeywordID string        `db:"llm_keyword_id" json:"llmKeywordId"`
	Provider     LLMProviderID `db:"provider" json:"provider"`
	Question     string        `db:"question" json:"question"`
	CitesDomain  bool          `db:"cites_domain" json:"citesDomain"`
	Answer       string        `db:"answer" json:"answer"`
	CheckedAt    time.Time     `db:"checked_at" json:"checkedAt"`
}

type CreateLLMCheckResultParams struct {
	LLMKeywordID string
	Provider     LLMProviderID
	Question     string
	CitesDomain  bool
	Answer       string
}
