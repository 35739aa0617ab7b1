package postgres

import (
	"context"

	"github.com/go-redis/redis/v8"

	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/repository"
	"ai-chat-client/internal/infra/metrics"
	red "ai-chat-client/internal/infra/redis"
)

var _ repository.ConversationRepository = (*conversationRepoCacheDecorator)(nil)

// conversationRepoCacheDecorator serves the history listing from the summary
// cache and invalidates it on every write to the owner's set. Full transcript
// loads always go to the database.
type conversationRepoCacheDecorator struct {
	inner repository.ConversationRepository
	cache *red.SummaryCache
}

func NewConversationRepoCacheDecorator(inner repository.ConversationRepository, cache *red.SummaryCache) repository.ConversationRepository {
	return &conversationRepoCacheDecorator{inner: inner, cache: cache}
}

func (d *conversationRepoCacheDecorator) FindSummariesByOwner(ctx context.Context, qx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
	if summaries, err := d.cache.Get(ctx, ownerID); err == nil {
		metrics.IncCacheRequest("history", "hit")
		return summaries, nil
	} else if err != redis.Nil {
		// Real cache errors fall through to the database.
	}

	metrics.IncCacheRequest("history", "miss")
	summaries, err := d.inner.FindSummariesByOwner(ctx, qx, ownerID)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Store(ctx, ownerID, summaries)
	return summaries, nil
}

func (d *conversationRepoCacheDecorator) Create(ctx context.Context, qx repository.Tx, conv *model.Conversation) (string, error) {
	_ = d.cache.Invalidate(ctx, conv.OwnerID)
	return d.inner.Create(ctx, qx, conv)
}

func (d *conversationRepoCacheDecorator) Update(ctx context.Context, qx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error {
	_ = d.cache.Invalidate(ctx, ownerID)
	return d.inner.Update(ctx, qx, ownerID, id, patch)
}

func (d *conversationRepoCacheDecorator) AppendMessages(ctx context.Context, qx repository.Tx, ownerID, id string, messages []model.Message) error {
	_ = d.cache.Invalidate(ctx, ownerID)
	return d.inner.AppendMessages(ctx, qx, ownerID, id, messages)
}

func (d *conversationRepoCacheDecorator) Delete(ctx context.Context, qx repository.Tx, ownerID, id string) error {
	_ = d.cache.Invalidate(ctx, ownerID)
	return d.inner.Delete(ctx, qx, ownerID, id)
}

// Pass-through: transcripts are not cached.
func (d *conversationRepoCacheDecorator) FindByID(ctx context.Context, qx repository.Tx, ownerID, id string) (*model.Conversation, error) {
	return d.inner.FindByID(ctx, qx, ownerID, id)
}
