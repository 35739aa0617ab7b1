package repository

import (
	"context"

	"ai-chat-client/internal/domain/model"
)

// ConversationPatch is a partial update; nil fields are left untouched.
type ConversationPatch struct {
	Title *string
}

// ConversationRepository is the durable store port. Every operation is scoped
// to an owner: a missing row yields domain.ErrNotFound, a row held by a
// different owner yields domain.ErrForbidden.
type ConversationRepository interface {
	// Create persists a new conversation and returns its id. When conv.ID is
	// empty an id is allocated; when conv.Title is blank one is derived from
	// the first user message.
	Create(ctx context.Context, qx Tx, conv *model.Conversation) (string, error)

	FindByID(ctx context.Context, qx Tx, ownerID, id string) (*model.Conversation, error)

	// FindSummariesByOwner lists summaries ordered by updated_at descending.
	FindSummariesByOwner(ctx context.Context, qx Tx, ownerID string) ([]model.ConversationSummary, error)

	// Update applies a partial update (rename) and refreshes updated_at.
	Update(ctx context.Context, qx Tx, ownerID, id string, patch ConversationPatch) error

	// AppendMessages adds the tail of an actively growing conversation.
	// Returns domain.ErrConflict when the conversation was deleted between
	// the existence check and the insert.
	AppendMessages(ctx context.Context, qx Tx, ownerID, id string, messages []model.Message) error

	// Delete removes the conversation permanently. Deleting an id that is
	// already gone is not an error.
	Delete(ctx context.Context, qx Tx, ownerID, id string) error
}
