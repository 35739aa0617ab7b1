// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/adapter"
	"ai-chat-client/internal/domain/ports/repository"
)

// fakeAI returns scripted replies and can be made to block until released,
// which lets tests overlap a send with other session operations.
type fakeAI struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	block   chan struct{} // when non-nil, Chat waits here before returning
}

func (f *fakeAI) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	block := f.block
	err := f.err
	var reply string
	if len(f.replies) > 0 {
		reply = f.replies[(n-1)%len(f.replies)]
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (f *fakeAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.ChatParams) (string, adapter.Usage, error) {
	reply, err := f.Chat(ctx, model, messages, params)
	return reply, adapter.Usage{}, err
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) { return []string{"fake"}, nil }

func (f *fakeAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}

func (f *fakeAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return 0, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mockTxManager runs the callback without a real transaction. Assign
// withTxFunc to script commit/rollback behavior.
type mockTxManager struct {
	withTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	calls      int
}

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	if m.withTxFunc != nil {
		return m.withTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// memConversationRepo is an in-memory ConversationRepository with per-method
// error injection and call counting.
type memConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
	seq   int

	createErr error
	findErr   error
	listErr   error
	updateErr error
	appendErr error
	deleteErr error

	createCalls int
	appendCalls int
	deleteCalls int
	updateCalls int
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{convs: make(map[string]*model.Conversation)}
}

func (m *memConversationRepo) Create(ctx context.Context, qx repository.Tx, conv *model.Conversation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	id := conv.ID
	if id == "" {
		id = fmt.Sprintf("conv-%d", m.seq)
	}
	stored := *conv
	stored.ID = id
	if stored.Title == "" {
		stored.Title = model.DeriveTitle(conv.Messages)
	}
	stored.Messages = append([]model.Message(nil), conv.Messages...)
	m.convs[id] = &stored
	return id, nil
}

func (m *memConversationRepo) FindByID(ctx context.Context, qx repository.Tx, ownerID, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	conv, ok := m.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if conv.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	out := *conv
	out.Messages = append([]model.Message(nil), conv.Messages...)
	return &out, nil
}

func (m *memConversationRepo) FindSummariesByOwner(ctx context.Context, qx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.ConversationSummary
	for _, conv := range m.convs {
		if conv.OwnerID == ownerID {
			out = append(out, conv.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memConversationRepo) Update(ctx context.Context, qx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	conv, ok := m.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if conv.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *memConversationRepo) AppendMessages(ctx context.Context, qx repository.Tx, ownerID, id string, messages []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	conv, ok := m.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if conv.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	conv.Messages = append(conv.Messages, messages...)
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *memConversationRepo) Delete(ctx context.Context, qx repository.Tx, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	conv, ok := m.convs[id]
	if !ok {
		return nil
	}
	if conv.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	delete(m.convs, id)
	return nil
}
