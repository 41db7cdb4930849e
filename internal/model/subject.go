package model

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// KeywordGroup is a rank-tracking subject: a named set of tracked keywords
// checked against one search location and device class.
type KeywordGroup struct {
	ID           string    `db:"id" json:"id"`
	AccountID    string    `db:"account_id" json:"accountId"`
	Name         string    `db:"name" json:"name"`
	LocationCode string    `db:"location_code" json:"locationCode"`
	Device       string    `db:"device" json:"device"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type TrackedKeyword struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"groupId"`
	Keyword   string    `db:"keyword" json:"keyword"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// LLMKeyword is an LLM-visibility subject: a keyword with the questions asked
// per pass and the provider families each question goes to.
type LLMKeyword struct {
	ID        string          `db:"id" json:"id"`
	AccountID string          `db:"account_id" json:"accountId"`
	Keyword   string          `db:"keyword" json:"keyword"`
	Providers pq.StringArray  `db:"providers" json:"providers"`
	Questions json.RawMessage `db:"questions" json:"questions"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// ProviderIDs converts the stored provider names to typed IDs.
func (k *LLMKeyword) ProviderIDs() []LLMProviderID {
	ids := make([]LLMProviderID, 0, len(k.Providers))
	for _, p := range k.Providers {
		ids = append(ids, LLMProviderID(p))
	}
	return ids
}

// QuestionList decodes the stored questions array.
func (k *LLMKeyword) QuestionList() ([]string, error) {
	var questions []string
	if len(k.Questions) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(k.Questions, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// BusinessProfile resolves an account to the domain its checks target.
type BusinessProfile struct {
	AccountID string    `db:"account_id" json:"accountId"`
	Website   string    `db:"website" json:"website"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
