package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/reviewpulse/credits-server/internal/config"
	"github.com/reviewpulse/credits-server/internal/model"
)

// LLMAnswer is one question's outcome against one model family.
type LLMAnswer struct {
	CitesDomain bool
	Raw         string
}

// LLMProvider asks a single visibility question to one model family and
// reports whether the answer cites the target domain.
type LLMProvider interface {
	ID() model.LLMProviderID
	Ask(ctx context.Context, question, targetDomain string) (*LLMAnswer, error)
}

// Registry resolves provider IDs stored on a subject to configured clients.
type Registry struct {
	providers map[model.LLMProviderID]LLMProvider
}

func NewRegistry(providers ...LLMProvider) *Registry {
	m := make(map[model.LLMProviderID]LLMProvider, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(id model.LLMProviderID) (LLMProvider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// chatClient speaks the OpenAI-compatible chat-completions dialect all four
// supported families expose (natively or via their compatibility endpoints).
type chatClient struct {
	id      model.LLMProviderID
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type ChatClientConfig struct {
	ID      model.LLMProviderID
	BaseURL string
	APIKey  string
	Model   string
}

func NewChatProvider(cfg ChatClientConfig) LLMProvider {
	return &chatClient{
		id:      cfg.ID,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: config.LLMProviderTimeout,
		},
	}
}

func (c *chatClient) ID() model.LLMProviderID {
	return c.id
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) Ask(ctx context.Context, question, targetDomain string) (*LLMAnswer, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s request failed with status %d", c.id, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.id)
	}

	raw := decoded.Choices[0].Message.Content
	return &LLMAnswer{
		CitesDomain: AnswerCitesDomain(raw, targetDomain),
		Raw:         raw,
	}, nil
}

// AnswerCitesDomain reports whether the answer mentions the target domain,
// ignoring case and a leading www.
func AnswerCitesDomain(answer, targetDomain string) bool {
	domain := strings.ToLower(strings.TrimSpace(targetDomain))
	domain = strings.TrimPrefix(domain, "www.")
	if domain == "" {
		return false
	}
	return strings.Contains(strings.ToLower(answer), domain)
}
