package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/reviewpulse/credits-server/internal/model"
)

// ResultRepository persists per-unit check outcomes. Executors write each row
// as the unit completes, so a crash mid-run keeps the finished work.
type ResultRepository interface {
	CreateRankResult(ctx context.Context, params model.CreateRankCheckResultParams) (*model.RankCheckResult, error)
	CreateLLMResult(ctx context.Context, params model.CreateLLMCheckResultParams) (*model.LLMCheckResult, error)
}

type resultRepo struct {
	db sqlxDB
}

func NewResultRepository(db *sqlx.DB) ResultRepository {
	return &resultRepo{db: db}
}

func (r *resultRepo) CreateRankResult(ctx context.Context, params model.CreateRankCheckResultParams) (*model.RankCheckResult, error) {
	var result model.RankCheckResult
	err := r.db.GetContext(ctx, &result, `
		INSERT INTO rank_check_results (keyword_id, group_id, position, found_url, api_cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.KeywordID, params.GroupID, params.Position, params.FoundURL, params.APICost)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *resultRepo) CreateLLMResult(ctx context.Context, params model.CreateLLMCheckResultParams) (*model.LLMCheckResult, error) {
	var result model.LLMCheckResult
	err := r.db.GetContext(ctx, &result, `
		INSERT INTO llm_check_results (llm_keyword_id, provider, question, cites_domain, answer)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.LLMKeywordID, params.Provider, params.Question, params.CitesDomain, params.Answer)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
