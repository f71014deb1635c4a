// Package contexttrack holds the per-conversation topic state used to
// disambiguate follow-up questions. State is in-memory only: a restart
// means the next message in any conversation starts a fresh topic.
package contexttrack

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

// DefaultCapacity bounds tracked conversations when no capacity is
// configured. The LRU cap keeps long-lived processes from accumulating
// context for every conversation ever seen.
const DefaultCapacity = 1024

// Tracker stores one ConversationContext per chat id, evicting the
// least recently used entry once capacity is reached. Methods are safe
// for concurrent use from independent turns.
type Tracker struct {
	mu       sync.Mutex
	contexts *lru.Cache[string, chat.ConversationContext]
	now      func() time.Time
}

// New creates a tracker bounded to capacity conversations.
func New(capacity int) (*Tracker, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	cache, err := lru.New[string, chat.ConversationContext](capacity)
	if err != nil {
		return nil, err
	}

	return &Tracker{contexts: cache, now: time.Now}, nil
}

// Get returns the context for chatID, if any.
func (t *Tracker) Get(chatID string) (chat.ConversationContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contexts.Get(chatID)
}

// Set replaces the context for chatID wholesale and stamps it.
func (t *Tracker) Set(chatID string, context chat.ConversationContext) {
	t.mu.Lock()
	defer t.mu.Unlock()

	context.Timestamp = t.now()
	t.contexts.Add(chatID, context)
}

// Update applies fn to the existing context for chatID and restamps it.
// Absent chat ids are a no-op.
func (t *Tracker) Update(chatID string, fn func(*chat.ConversationContext)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.contexts.Get(chatID)
	if !ok {
		return
	}

	fn(&existing)
	existing.Timestamp = t.now()
	t.contexts.Add(chatID, existing)
}

// Clear drops the context for chatID.
func (t *Tracker) Clear(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contexts.Remove(chatID)
}

// Len reports how many conversations are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contexts.Len()
}
