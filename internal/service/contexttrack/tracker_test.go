package contexttrack

import (
	"fmt"
	"testing"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

func TestSetReplacesContextWholesale(t *testing.T) {
	tracker, err := New(8)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	tracker.Set("chat-1", chat.ConversationContext{CurrentTopic: "chest pain", LastMessageID: "m1"})
	tracker.Set("chat-1", chat.ConversationContext{CurrentTopic: "skin rashes", LastMessageID: "m2"})

	got, ok := tracker.Get("chat-1")
	if !ok {
		t.Fatal("expected context")
	}
	if got.CurrentTopic != "skin rashes" || got.LastMessageID != "m2" {
		t.Fatalf("old context leaked into replacement: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("Set must stamp the context")
	}
}

func TestUpdateMissingChatIsNoOp(t *testing.T) {
	tracker, err := New(8)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	tracker.Update("missing", func(c *chat.ConversationContext) {
		c.CurrentTopic = "should not appear"
	})

	if _, ok := tracker.Get("missing"); ok {
		t.Fatal("Update must not create contexts")
	}
}

func TestUpdateExistingContext(t *testing.T) {
	tracker, err := New(8)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	tracker.Set("chat-1", chat.ConversationContext{CurrentTopic: "chest pain"})
	tracker.Update("chat-1", func(c *chat.ConversationContext) {
		c.LastMessageID = "m9"
	})

	got, _ := tracker.Get("chat-1")
	if got.CurrentTopic != "chest pain" || got.LastMessageID != "m9" {
		t.Fatalf("unexpected context after update: %+v", got)
	}
}

func TestClear(t *testing.T) {
	tracker, err := New(8)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	tracker.Set("chat-1", chat.ConversationContext{CurrentTopic: "chest pain"})
	tracker.Clear("chat-1")

	if _, ok := tracker.Get("chat-1"); ok {
		t.Fatal("expected context to be cleared")
	}
}

func TestCapacityBoundEvictsOldest(t *testing.T) {
	tracker, err := New(4)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	for i := 0; i < 10; i++ {
		tracker.Set(fmt.Sprintf("chat-%d", i), chat.ConversationContext{CurrentTopic: "t"})
	}

	if tracker.Len() != 4 {
		t.Fatalf("expected capacity bound of 4, got %d", tracker.Len())
	}
	if _, ok := tracker.Get("chat-0"); ok {
		t.Fatal("oldest context should have been evicted")
	}
	if _, ok := tracker.Get("chat-9"); !ok {
		t.Fatal("newest context must survive")
	}
}
