//go:build !integration

package postgres

import (
	"context"
	"time"

	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/repository"
)

// --- Mocks for Cache Decorator Tests ---

// mockRedisClient implements red.RedisClient with pluggable behavior.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc != nil {
		return m.IncrFunc(ctx, key)
	}
	return 0, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, key, expiration)
	}
	return nil
}

// mockInnerConversationRepo mocks the database repository the decorator wraps.
type mockInnerConversationRepo struct {
	CreateFunc               func(ctx context.Context, tx repository.Tx, conv *model.Conversation) (string, error)
	FindByIDFunc             func(ctx context.Context, tx repository.Tx, ownerID, id string) (*model.Conversation, error)
	FindSummariesByOwnerFunc func(ctx context.Context, tx repository.Tx, ownerID string) ([]model.ConversationSummary, error)
	UpdateFunc               func(ctx context.Context, tx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error
	AppendMessagesFunc       func(ctx context.Context, tx repository.Tx, ownerID, id string, messages []model.Message) error
	DeleteFunc               func(ctx context.Context, tx repository.Tx, ownerID, id string) error
}

func (m *mockInnerConversationRepo) Create(ctx context.Context, tx repository.Tx, conv *model.Conversation) (string, error) {
	return m.CreateFunc(ctx, tx, conv)
}
func (m *mockInnerConversationRepo) FindByID(ctx context.Context, tx repository.Tx, ownerID, id string) (*model.Conversation, error) {
	return m.FindByIDFunc(ctx, tx, ownerID, id)
}
func (m *mockInnerConversationRepo) FindSummariesByOwner(ctx context.Context, tx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
	return m.FindSummariesByOwnerFunc(ctx, tx, ownerID)
}
func (m *mockInnerConversationRepo) Update(ctx context.Context, tx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error {
	return m.UpdateFunc(ctx, tx, ownerID, id, patch)
}
func (m *mockInnerConversationRepo) AppendMessages(ctx context.Context, tx repository.Tx, ownerID, id string, messages []model.Message) error {
	return m.AppendMessagesFunc(ctx, tx, ownerID, id, messages)
}
func (m *mockInnerConversationRepo) Delete(ctx context.Context, tx repository.Tx, ownerID, id string) error {
	return m.DeleteFunc(ctx, tx, ownerID, id)
}
