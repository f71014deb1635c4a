package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

// Memory implements ChatStore and RateLimitStore with in-process maps,
// suitable for tests and for running without a MongoDB connection.
type Memory struct {
	mu      sync.RWMutex
	chats   map[string]chat.Chat
	records map[string]RateLimitRecord
}

// NewMemory bootstraps an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		chats:   make(map[string]chat.Chat),
		records: make(map[string]RateLimitRecord),
	}
}

func (m *Memory) FindChat(_ context.Context, id string) (*chat.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := c
	copied.Messages = append([]chat.Message(nil), c.Messages...)
	return &copied, nil
}

func (m *Memory) InsertChat(_ context.Context, c *chat.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *c
	stored.Messages = append([]chat.Message(nil), c.Messages...)
	m.chats[c.ID] = stored
	return nil
}

func (m *Memory) UpdateChat(_ context.Context, id string, update ChatUpdate, appendMessages []chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok {
		return ErrNotFound
	}

	c.Title = update.Title
	c.Path = update.Path
	c.UpdatedAt = update.UpdatedAt
	if update.SharePath != "" {
		c.SharePath = update.SharePath
	}
	c.Messages = append(c.Messages, appendMessages...)
	m.chats[id] = c
	return nil
}

func (m *Memory) ListChats(_ context.Context, userID string) ([]chat.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chats []chat.Chat
	for _, c := range m.chats {
		if c.UserID != userID {
			continue
		}
		copied := c
		copied.Messages = append([]chat.Message(nil), c.Messages...)
		chats = append(chats, copied)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (m *Memory) DeleteChat(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[id]; !ok {
		return ErrNotFound
	}
	delete(m.chats, id)
	return nil
}

func (m *Memory) DeleteUserChats(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.chats {
		if c.UserID == userID {
			delete(m.chats, id)
		}
	}
	return nil
}

func (m *Memory) FindRecord(_ context.Context, clientID string) (*RateLimitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := rec
	return &copied, nil
}

func (m *Memory) InsertRecord(_ context.Context, rec *RateLimitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ClientID] = *rec
	return nil
}

func (m *Memory) ResetRecord(_ context.Context, clientID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[clientID]
	if !ok {
		return ErrNotFound
	}
	rec.RequestCount = 1
	rec.WindowStart = now
	rec.UpdatedAt = now
	m.records[clientID] = rec
	return nil
}

func (m *Memory) IncrementRecord(_ context.Context, clientID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[clientID]
	if !ok {
		return ErrNotFound
	}
	rec.RequestCount++
	rec.UpdatedAt = now
	m.records[clientID] = rec
	return nil
}
