package chat

import (
	"time"
	"unicode/utf8"
)

// Chat is the persisted conversation record, owned by exactly one user.
type Chat struct {
	ID        string    `json:"id" bson:"id"`
	Title     string    `json:"title" bson:"title"`
	UserID    string    `json:"userId" bson:"userId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	Path      string    `json:"path" bson:"path"`
	SharePath string    `json:"sharePath,omitempty" bson:"sharePath,omitempty"`
	Messages  []Message `json:"messages" bson:"messages"`
}

// TitleLimit caps derived chat titles, in runes.
const TitleLimit = 100

// DeriveTitle builds a chat title from the first transcript entry.
// Truncation happens on a rune boundary so multi-byte content never
// yields an invalid title.
func DeriveTitle(messages []Message) string {
	if len(messages) == 0 {
		return "New Chat"
	}
	title := messages[0].Content
	if utf8.RuneCountInString(title) > TitleLimit {
		title = string([]rune(title)[:TitleLimit])
	}
	return title
}
