package redis

import (
	"context"
	"encoding/json"
	"time"

	"ai-chat-client/internal/domain/model"
)

// SummaryCache holds the per-owner conversation summary list so the history
// sidebar does not hit Postgres on every open.
type SummaryCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSummaryCache(client RedisClient, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
	}
}

func summaryKey(ownerID string) string { return "history:" + ownerID }

func (c *SummaryCache) Store(ctx context.Context, ownerID string, summaries []model.ConversationSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(ownerID), data, c.ttl)
}

func (c *SummaryCache) Get(ctx context.Context, ownerID string) ([]model.ConversationSummary, error) {
	data, err := c.client.Get(ctx, summaryKey(ownerID))
	if err != nil {
		return nil, err
	}

	var summaries []model.ConversationSummary
	if err := json.Unmarshal([]byte(data), &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Invalidate drops the cached list after any mutation of the owner's set.
func (c *SummaryCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, summaryKey(ownerID))
}
