package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
	"github.com/medassist/med-ai/backend/internal/store"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUnauthorized = errors.New("chat belongs to another user")
	ErrNotShared    = errors.New("chat is not shared")
)

// Service manages conversation records through the document store.
type Service struct {
	chats store.ChatStore
}

// NewService wires the transcript service to a chat store.
func NewService(chats store.ChatStore) *Service {
	return &Service{chats: chats}
}

// SaveChat consolidates the transcript and upserts it by chat id. For
// an existing record only messages whose id is not yet stored are
// appended; the already-persisted prefix is immutable.
func (s *Service) SaveChat(ctx context.Context, c *chat.Chat) error {
	consolidated := Consolidate(c.Messages)
	now := time.Now().UTC()

	title := c.Title
	if title == "" || title == "New Chat" {
		title = chat.DeriveTitle(consolidated)
	}

	existing, err := s.chats.FindChat(ctx, c.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		record := *c
		record.Title = title
		record.Messages = consolidated
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now
		if insertErr := s.chats.InsertChat(ctx, &record); insertErr != nil {
			return fmt.Errorf("failed to save chat %s: %w", c.ID, insertErr)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to save chat %s: %w", c.ID, err)
	}

	seen := make(map[string]struct{}, len(existing.Messages))
	for _, msg := range existing.Messages {
		seen[msg.ID] = struct{}{}
	}

	var fresh []chat.Message
	for _, msg := range consolidated {
		if _, ok := seen[msg.ID]; !ok {
			fresh = append(fresh, msg)
		}
	}

	if len(fresh) == 0 {
		return nil
	}

	update := store.ChatUpdate{
		Title:     title,
		Path:      c.Path,
		SharePath: c.SharePath,
		UpdatedAt: now,
	}
	if err := s.chats.UpdateChat(ctx, c.ID, update, fresh); err != nil {
		return fmt.Errorf("failed to save chat %s: %w", c.ID, err)
	}
	return nil
}

// GetChat loads a chat and verifies ownership. The transcript is
// consolidated on read so older fragmented records heal over time.
func (s *Service) GetChat(ctx context.Context, id, userID string) (*chat.Chat, error) {
	c, err := s.chats.FindChat(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID != "" && c.UserID != userID {
		return nil, ErrUnauthorized
	}

	c.Messages = Consolidate(c.Messages)
	return c, nil
}

// ListChats returns a user's chats, newest first, consolidated.
func (s *Service) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	if userID == "" {
		return nil, nil
	}

	chats, err := s.chats.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range chats {
		chats[i].Messages = Consolidate(chats[i].Messages)
	}
	return chats, nil
}

// RemoveChat deletes a chat after an ownership check.
func (s *Service) RemoveChat(ctx context.Context, id, userID string) error {
	c, err := s.chats.FindChat(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return ErrUnauthorized
	}

	return s.chats.DeleteChat(ctx, id)
}

// ClearChats removes every chat owned by userID.
func (s *Service) ClearChats(ctx context.Context, userID string) error {
	return s.chats.DeleteUserChats(ctx, userID)
}

// ShareChat marks a chat shareable and returns the updated record.
func (s *Service) ShareChat(ctx context.Context, id, userID string) (*chat.Chat, error) {
	c, err := s.GetChat(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	c.SharePath = "/share/" + c.ID
	update := store.ChatUpdate{
		Title:     c.Title,
		Path:      c.Path,
		SharePath: c.SharePath,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.chats.UpdateChat(ctx, id, update, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// GetSharedChat loads a chat through its share contract, without an
// ownership check. Chats never shared stay private.
func (s *Service) GetSharedChat(ctx context.Context, id string) (*chat.Chat, error) {
	c, err := s.chats.FindChat(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.SharePath == "" {
		return nil, ErrNotShared
	}

	c.Messages = Consolidate(c.Messages)
	return c, nil
}

// LogPersistFailure records a lost-durability condition. The caller
// still returns the in-memory transcript; only persistence is lost.
func LogPersistFailure(chatID string, err error) {
	slog.Error("chat persistence failed, transcript durability lost", "chat", chatID, "error", err)
}
