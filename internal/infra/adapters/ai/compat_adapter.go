package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-chat-client/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*CompatOpenAIAdapter)(nil)

// CompatOpenAIAdapter talks to any OpenAI-compatible gateway over raw HTTP.
// Chat completions path is the same as OpenAI: /chat/completions
// Authorization: Bearer <key>
type CompatOpenAIAdapter struct {
	apiKey string
	base   string // e.g. https://api.metisai.ir/openai/v1
	model  string
	client *http.Client
}

func NewCompatOpenAIAdapter(apiKey, model, base string) (*CompatOpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("compat gateway api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if base == "" {
		return nil, errors.New("compat gateway base url empty")
	}
	return &CompatOpenAIAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *CompatOpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{c.model}, nil
}

func (c *CompatOpenAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	if model == "" {
		model = c.model
	}
	return adapter.ModelInfo{
		Name:        model,
		Description: "OpenAI-compatible gateway model",
		MaxTokens:   0,
		Supports:    []string{"text"},
	}, nil
}

func (c *CompatOpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = c.model
	}
	return countTokensBPE(model, messages)
}

func (c *CompatOpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, error) {
	reply, _, err := c.chatCore(ctx, model, messages, params)
	return reply, err
}

func (c *CompatOpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, adapter.Usage, error) {
	return c.chatCore(ctx, model, messages, params)
}

func (c *CompatOpenAIAdapter) chatCore(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, adapter.Usage, error) {
	if model == "" {
		model = c.model
	}

	reqBody := struct {
		Model       string            `json:"model"`
		Messages    []adapter.Message `json:"messages"`
		Temperature float64           `json:"temperature,omitempty"`
		MaxTokens   int               `json:"max_tokens,omitempty"`
	}{Model: model, Messages: messages, Temperature: params.Temperature, MaxTokens: params.MaxTokens}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", adapter.Usage{}, fmt.Errorf("compat gateway http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	for _, ch := range payload.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, u, nil
		}
	}
	return "", u, errors.New("no choice content")
}
