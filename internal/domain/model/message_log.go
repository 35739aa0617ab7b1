package model

import "time"

// MessageLog is the ordered record of the active conversation's turns.
// Append-only until cleared; individual messages are never removed.
// It is not safe for concurrent use — the session controller serializes access.
type MessageLog struct {
	conversationID string
	messages       []Message
}

func NewMessageLog() *MessageLog {
	return &MessageLog{messages: make([]Message, 0, 8)}
}

func (l *MessageLog) Append(role, content string) {
	l.messages = append(l.messages, Message{
		ConversationID: l.conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
	})
}

// Clear empties the log and forgets the bound conversation id.
func (l *MessageLog) Clear() {
	l.conversationID = ""
	l.messages = l.messages[:0]
}

// Reset replaces the log contents with a loaded conversation's messages.
func (l *MessageLog) Reset(conversationID string, messages []Message) {
	l.conversationID = conversationID
	l.messages = append(l.messages[:0], messages...)
}

// Snapshot returns a copy of the current sequence; mutating the returned
// slice does not affect the log.
func (l *MessageLog) Snapshot() []Message {
	return append([]Message(nil), l.messages...)
}

func (l *MessageLog) Len() int { return len(l.messages) }

func (l *MessageLog) ConversationID() string { return l.conversationID }

// Bind attaches a durable conversation id after a successful create.
func (l *MessageLog) Bind(conversationID string) {
	l.conversationID = conversationID
	for i := range l.messages {
		l.messages[i].ConversationID = conversationID
	}
}
