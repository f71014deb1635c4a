package chat

import "time"

// ConversationContext is the ephemeral topic state for one chat. It is
// replaced wholesale whenever a self-contained topic statement arrives
// and is never persisted; a process restart resets every conversation
// to a fresh topic.
type ConversationContext struct {
	CurrentTopic  string    `json:"currentTopic,omitempty"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
