// File: internal/usecase/history_uc.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/repository"
	"ai-chat-client/internal/infra/logging"
)

// Compile-time check
var _ HistoryUseCase = (*historyUC)(nil)

// HistoryUseCase maintains the owner's sidebar listing: a cached, ordered view
// of conversation summaries with optimistic rename and delete.
type HistoryUseCase interface {
	Refresh(ctx context.Context) error
	Summaries() []model.ConversationSummary
	Remove(ctx context.Context, conversationID string) error
	Rename(ctx context.Context, conversationID, title string) error
	Clear()
	LastError() error
}

type historyUC struct {
	mu        sync.Mutex
	ownerID   string
	summaries []model.ConversationSummary
	lastErr   error

	convs  repository.ConversationRepository
	logger *zerolog.Logger
}

func NewHistoryUseCase(ownerID string, convs repository.ConversationRepository, logger *zerolog.Logger) *historyUC {
	return &historyUC{ownerID: ownerID, convs: convs, logger: logger}
}

// Refresh replaces the cached listing with the store's view. On failure the
// previous listing is kept so the sidebar does not blank out.
func (h *historyUC) Refresh(ctx context.Context) error {
	defer logging.TraceDuration(h.logger, "HistoryUC.Refresh")()

	if h.ownerID == "" {
		return domain.ErrUnauthenticated
	}

	summaries, err := h.convs.FindSummariesByOwner(ctx, nil, h.ownerID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.lastErr = err
		return err
	}
	h.summaries = summaries
	h.lastErr = nil
	return nil
}

// Summaries returns a copy of the cached listing, most recently updated first.
func (h *historyUC) Summaries() []model.ConversationSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ConversationSummary(nil), h.summaries...)
}

// Remove deletes a conversation optimistically: the entry leaves the listing
// immediately and is reinserted at its old position if the store refuses.
func (h *historyUC) Remove(ctx context.Context, conversationID string) error {
	defer logging.TraceDuration(h.logger, "HistoryUC.Remove")()

	if h.ownerID == "" {
		return domain.ErrUnauthenticated
	}

	h.mu.Lock()
	idx, removed := h.takeLocked(conversationID)
	h.mu.Unlock()

	err := h.convs.Delete(ctx, nil, h.ownerID, conversationID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		if removed != nil {
			h.reinsertLocked(idx, *removed)
		}
		h.lastErr = err
		h.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("delete rolled back")
		return err
	}
	h.lastErr = nil
	return nil
}

// Rename retitles a conversation optimistically. Success also bumps the
// entry's updated_at and resorts, mirroring what the store does; failure
// restores the previous title in place.
func (h *historyUC) Rename(ctx context.Context, conversationID, title string) error {
	defer logging.TraceDuration(h.logger, "HistoryUC.Rename")()

	if h.ownerID == "" {
		return domain.ErrUnauthenticated
	}
	if title == "" {
		return domain.ErrInvalidArgument
	}

	h.mu.Lock()
	prev, found := h.retitleLocked(conversationID, title)
	h.mu.Unlock()

	err := h.convs.Update(ctx, nil, h.ownerID, conversationID, repository.ConversationPatch{Title: &title})

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		if found {
			h.retitleLocked(conversationID, prev)
		}
		h.lastErr = err
		h.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("rename rolled back")
		return err
	}
	if found {
		h.touchLocked(conversationID)
	}
	h.lastErr = nil
	return nil
}

// Clear drops the cached listing, used at logout.
func (h *historyUC) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summaries = nil
	h.lastErr = nil
}

func (h *historyUC) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *historyUC) takeLocked(id string) (int, *model.ConversationSummary) {
	for i, s := range h.summaries {
		if s.ID == id {
			taken := s
			h.summaries = append(h.summaries[:i], h.summaries[i+1:]...)
			return i, &taken
		}
	}
	return -1, nil
}

func (h *historyUC) reinsertLocked(idx int, s model.ConversationSummary) {
	if idx < 0 || idx > len(h.summaries) {
		idx = len(h.summaries)
	}
	h.summaries = append(h.summaries, model.ConversationSummary{})
	copy(h.summaries[idx+1:], h.summaries[idx:])
	h.summaries[idx] = s
}

// retitleLocked swaps in a title and returns the previous one.
func (h *historyUC) retitleLocked(id, title string) (prev string, found bool) {
	for i := range h.summaries {
		if h.summaries[i].ID == id {
			prev = h.summaries[i].Title
			h.summaries[i].Title = title
			return prev, true
		}
	}
	return "", false
}

func (h *historyUC) touchLocked(id string) {
	for i := range h.summaries {
		if h.summaries[i].ID == id {
			h.summaries[i].UpdatedAt = time.Now()
			break
		}
	}
	sort.SliceStable(h.summaries, func(i, j int) bool {
		return h.summaries[i].UpdatedAt.After(h.summaries[j].UpdatedAt)
	})
}
