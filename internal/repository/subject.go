package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/reviewpulse/credits-server/internal/model"
)

type KeywordGroupRepository interface {
	FindByID(ctx context.Context, id string) (*model.KeywordGroup, error)
	FindKeywordsByGroupID(ctx context.Context, groupID string) ([]model.TrackedKeyword, error)
}

type keywordGroupRepo struct {
	db sqlxDB
}

func NewKeywordGroupRepository(db *sqlx.DB) KeywordGroupRepository {
	return &keywordGroupRepo{db: db}
}

func (r *keywordGroupRepo) FindByID(ctx context.Context, id string) (*model.KeywordGroup, error) {
	var group model.KeywordGroup
	err := r.db.GetContext(ctx, &group, `
		SELECT * FROM keyword_groups WHERE id = $1
	`, id)
	return HandleNotFound(&group, err)
}

func (r *keywordGroupRepo) FindKeywordsByGroupID(ctx context.Context, groupID string) ([]model.TrackedKeyword, error) {
	var keywords []model.TrackedKeyword
	err := r.db.SelectContext(ctx, &keywords, `
		SELECT * FROM tracked_keywords
		WHERE group_id = $1
		ORDER BY created_at ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	return keywords, nil
}

type LLMKeywordRepository interface {
	FindByID(ctx context.Context, id string) (*model.LLMKeyword, error)
}

type llmKeywordRepo struct {
	db sqlxDB
}

func NewLLMKeywordRepository(db *sqlx.DB) LLMKeywordRepository {
	return &llmKeywordRepo{db: db}
}

func (r *llmKeywordRepo) FindByID(ctx context.Context, id string) (*model.LLMKeyword, error) {
	var keyword model.LLMKeyword
	err := r.db.GetContext(ctx, &keyword, `
		SELECT * FROM llm_keywords WHERE id = $1
	`, id)
	return HandleNotFound(&keyword, err)
}

type ProfileRepository interface {
	FindByAccountID(ctx context.Context, accountID string) (*model.BusinessProfile, error)
}

type profileRepo struct {
	db sqlxDB
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) FindByAccountID(ctx context.Context, accountID string) (*model.BusinessProfile, error) {
	var profile model.BusinessProfile
	err := r.db.GetContext(ctx, &profile, `
		SELECT * FROM business_profiles WHERE account_id = $1
	`, accountID)
	return HandleNotFound(&profile, err)
}
