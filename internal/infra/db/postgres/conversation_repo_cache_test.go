//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/repository"
	red "ai-chat-client/internal/infra/redis"
)

func TestConversationRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	summaries := []model.ConversationSummary{
		{ID: "c2", OwnerID: "owner-1", Title: "Recent", MessageCount: 4, UpdatedAt: time.Unix(2000, 0)},
		{ID: "c1", OwnerID: "owner-1", Title: "Older", MessageCount: 2, UpdatedAt: time.Unix(1000, 0)},
	}

	t.Run("listing fetches from DB and sets cache on miss", func(t *testing.T) {
		innerCalled := false
		var storedKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", goredis.Nil // cache miss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				storedKey = key
				return nil
			},
		}
		inner := &mockInnerConversationRepo{
			FindSummariesByOwnerFunc: func(ctx context.Context, tx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
				innerCalled = true
				return summaries, nil
			},
		}

		decorator := NewConversationRepoCacheDecorator(inner, red.NewSummaryCache(mockRedis, time.Hour))

		got, err := decorator.FindSummariesByOwner(ctx, nil, "owner-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !innerCalled {
			t.Error("inner repository should be called on a cache miss")
		}
		if storedKey != "history:owner-1" {
			t.Errorf("expected cache warm for history:owner-1, got %q", storedKey)
		}
		if len(got) != 2 || got[0].ID != "c2" {
			t.Errorf("did not return summaries from the inner repository: %+v", got)
		}
	})

	t.Run("listing served from cache on hit", func(t *testing.T) {
		payload, _ := json.Marshal(summaries)
		innerCalled := false
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(payload), nil
			},
		}
		inner := &mockInnerConversationRepo{
			FindSummariesByOwnerFunc: func(ctx context.Context, tx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
				innerCalled = true
				return nil, nil
			},
		}

		decorator := NewConversationRepoCacheDecorator(inner, red.NewSummaryCache(mockRedis, time.Hour))

		got, err := decorator.FindSummariesByOwner(ctx, nil, "owner-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository must not be called on a cache hit")
		}
		if len(got) != 2 {
			t.Errorf("expected 2 cached summaries, got %d", len(got))
		}
	})

	t.Run("delete invalidates the owner's cached list", func(t *testing.T) {
		var deleted []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerConversationRepo{
			DeleteFunc: func(ctx context.Context, tx repository.Tx, ownerID, id string) error {
				return nil
			},
		}

		decorator := NewConversationRepoCacheDecorator(inner, red.NewSummaryCache(mockRedis, time.Hour))

		if err := decorator.Delete(ctx, nil, "owner-1", "c1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deleted) != 1 || deleted[0] != "history:owner-1" {
			t.Errorf("expected history:owner-1 invalidated, got %v", deleted)
		}
	})

	t.Run("rename invalidates before delegating", func(t *testing.T) {
		order := []string{}
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				order = append(order, "invalidate")
				return nil
			},
		}
		title := "Trip Plan"
		inner := &mockInnerConversationRepo{
			UpdateFunc: func(ctx context.Context, tx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error {
				order = append(order, "update")
				if patch.Title == nil || *patch.Title != title {
					t.Errorf("patch lost the title: %+v", patch)
				}
				return nil
			},
		}

		decorator := NewConversationRepoCacheDecorator(inner, red.NewSummaryCache(mockRedis, time.Hour))

		if err := decorator.Update(ctx, nil, "owner-1", "c1", repository.ConversationPatch{Title: &title}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(order) != 2 || order[0] != "invalidate" {
			t.Errorf("expected invalidate then update, got %v", order)
		}
	})
}
