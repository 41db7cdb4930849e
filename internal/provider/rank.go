package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/reviewpulse/credits-server/internal/config"
)

// RankResult is one keyword's SERP outcome. Position is nil when the target
// domain did not appear in the checked range.
type RankResult struct {
	Position *int
	FoundURL *string
	Cost     decimal.Decimal
}

// RankProvider performs a single search-rank lookup against an external SERP
// API.
type RankProvider interface {
	CheckRank(ctx context.Context, keyword, locationCode, targetDomain, device string) (*RankResult, error)
}

type serpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRankProvider(baseURL, apiKey string) RankProvider {
	return &serpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: config.RankProviderTimeout,
		},
	}
}

type serpRequest struct {
	Keyword      string `json:"keyword"`
	LocationCode string `json:"location_code"`
	TargetDomain string `json:"target_domain"`
	Device       string `json:"device"`
}

type serpResponse struct {
	Position *int    `json:"position"`
	FoundURL *string `json:"found_url"`
	Cost     string  `json:"cost"`
}

func (c *serpClient) CheckRank(ctx context.Context, keyword, locationCode, targetDomain, device string) (*RankResult, error) {
	body, err := json.Marshal(serpRequest{
		Keyword:      keyword,
		LocationCode: locationCode,
		TargetDomain: targetDomain,
		Device:       device,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/serp/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("keyword", keyword).Dur("elapsed", elapsed).Msg("rank check request failed")
		return nil, fmt.Errorf("rank check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("keyword", keyword).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("rank check failed")
		return nil, fmt.Errorf("rank check failed with status %d", resp.StatusCode)
	}

	var decoded serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	cost := decimal.Zero
	if decoded.Cost != "" {
		cost, err = decimal.NewFromString(decoded.Cost)
		if err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", decoded.Cost, err)
		}
	}

	log.Debug().
		Str("keyword", keyword).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("rank check completed")

	return &RankResult{
		Position: decoded.Position,
		FoundURL: decoded.FoundURL,
		Cost:     cost,
	}, nil
}
