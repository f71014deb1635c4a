package ai

import (
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

func TestHistoryMessagesCapsAndFiltersRoles(t *testing.T) {
	var messages []chat.Message
	messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: "sys"})
	for i := 0; i < 14; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	history := historyMessages(messages)
	if len(history) != historyLimit {
		t.Fatalf("expected %d history messages, got %d", historyLimit, len(history))
	}
	for _, msg := range history {
		if msg.Role != schema.User && msg.Role != schema.Assistant {
			t.Fatalf("unexpected role in history: %v", msg.Role)
		}
	}
	if history[len(history)-1].Content != "m13" {
		t.Fatalf("history must keep the newest messages, got %q", history[len(history)-1].Content)
	}
}

func TestHistoryMessagesEmpty(t *testing.T) {
	if got := historyMessages(nil); got != nil {
		t.Fatalf("expected nil history, got %+v", got)
	}
}
