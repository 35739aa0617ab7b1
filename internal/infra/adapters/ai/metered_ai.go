package ai

import (
	"context"
	"time"

	"ai-chat-client/internal/domain/ports/adapter"
	"ai-chat-client/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*meteredAI)(nil)

type meteredAI struct {
	inner    adapter.AIServiceAdapter
	provider string
}

// NewMeteredAI records latency and token usage for every chat call.
func NewMeteredAI(inner adapter.AIServiceAdapter, provider string) adapter.AIServiceAdapter {
	return &meteredAI{inner: inner, provider: provider}
}

func (m *meteredAI) ListModels(ctx context.Context) ([]string, error) {
	return m.inner.ListModels(ctx)
}

func (m *meteredAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return m.inner.GetModelInfo(model)
}

func (m *meteredAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return m.inner.CountTokens(ctx, model, messages)
}

func (m *meteredAI) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, error) {
	reply, _, err := m.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (m *meteredAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, adapter.Usage, error) {
	start := time.Now()
	reply, usage, err := m.inner.ChatWithUsage(ctx, model, messages, params)
	metrics.ObserveChatUsage(
		m.provider, model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
		int(time.Since(start).Milliseconds()), err == nil,
	)
	return reply, usage, err
}
