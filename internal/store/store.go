// Package store defines the document-store contract the chat core
// persists through, with MongoDB and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

var (
	// ErrNotFound signals an absent document.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps backend failures; callers decide whether to
	// fail open (rate limiting) or degrade durability (persistence).
	ErrUnavailable = errors.New("store unavailable")
)

// ChatUpdate carries the fields rewritten on every chat upsert.
type ChatUpdate struct {
	Title     string
	Path      string
	SharePath string
	UpdatedAt time.Time
}

// ChatStore persists conversation records keyed by chat id.
type ChatStore interface {
	FindChat(ctx context.Context, id string) (*chat.Chat, error)
	InsertChat(ctx context.Context, c *chat.Chat) error
	// UpdateChat rewrites the update fields and appends the given
	// messages to the stored transcript.
	UpdateChat(ctx context.Context, id string, update ChatUpdate, appendMessages []chat.Message) error
	ListChats(ctx context.Context, userID string) ([]chat.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	DeleteUserChats(ctx context.Context, userID string) error
}

// RateLimitRecord is the per-client fixed-window counter.
type RateLimitRecord struct {
	ClientID     string    `bson:"clientId"`
	RequestCount int       `bson:"requestCount"`
	WindowStart  time.Time `bson:"windowStart"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// RateLimitStore persists rate-limit windows keyed by client identity.
type RateLimitStore interface {
	FindRecord(ctx context.Context, clientID string) (*RateLimitRecord, error)
	InsertRecord(ctx context.Context, rec *RateLimitRecord) error
	// ResetRecord starts a fresh window with a count of one.
	ResetRecord(ctx context.Context, clientID string, now time.Time) error
	// IncrementRecord bumps the count within the live window.
	IncrementRecord(ctx context.Context, clientID string, now time.Time) error
}
