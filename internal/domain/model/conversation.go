package model

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// titleRuneLimit caps auto-generated titles at roughly one sidebar line.
const titleRuneLimit = 40

// DefaultTitle is used when a conversation has no user message to derive from.
const DefaultTitle = "New Conversation"

// Message is one turn of a conversation. Immutable once appended; ordering is
// carried by its position in the containing sequence.
type Message struct {
	ConversationID string
	Role           string // "user" | "assistant" | "system"
	Content        string
	Timestamp      time.Time
}

// Conversation is the aggregate root for a persisted chat transcript.
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewConversation(id, ownerID, title string, messages []Message) *Conversation {
	now := time.Now()
	c := &Conversation{
		ID:        id,
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(title),
		Messages:  append([]Message(nil), messages...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Title == "" {
		c.Title = DeriveTitle(messages)
	}
	return c
}

func (c *Conversation) MessageCount() int { return len(c.Messages) }

func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ConversationSummary is the listing projection: everything the sidebar needs
// without loading message bodies.
type ConversationSummary struct {
	ID           string
	OwnerID      string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeriveTitle builds a title from the first user message, truncated to a
// sidebar-friendly length. Falls back to DefaultTitle.
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if t == "" {
			continue
		}
		runes := []rune(t)
		if len(runes) > titleRuneLimit {
			return strings.TrimSpace(string(runes[:titleRuneLimit])) + "…"
		}
		return t
	}
	return DefaultTitle
}
