package chat_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
	chatservice "github.com/medassist/med-ai/backend/internal/service/chat"
)

func stamped(msg chat.Message) chat.Message {
	if msg.Metadata.Timestamp.IsZero() {
		msg.Metadata.Timestamp = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return msg
}

func TestConsolidateMergesGrowingStream(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Hel"}),
		stamped(chat.Message{ID: "a2", Role: chat.RoleAssistant, Content: "Hello"}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(out))
	}
	if out[0].Content != "Hello" {
		t.Fatalf("longer delta must replace the partial entry, got %q", out[0].Content)
	}
}

func TestConsolidateDropsShorterFragment(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Hello there"}),
		stamped(chat.Message{ID: "a2", Role: chat.RoleAssistant, Content: "Hello"}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 1 || out[0].Content != "Hello there" {
		t.Fatalf("shorter fragment must be discarded, got %+v", out)
	}
}

func TestConsolidateSplitsOnRoleChange(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "u1", Role: chat.RoleUser, Content: "What causes chest pain?"}),
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Many things."}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
}

func TestConsolidateSplitsOnAttachment(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "u1", Role: chat.RoleUser, Content: "Here is my question"}),
		stamped(chat.Message{
			ID: "u2", Role: chat.RoleUser, Content: "And here is the photo",
			Attachments: []chat.Attachment{{Data: "aGVsbG8="}},
		}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 2 {
		t.Fatalf("consecutive same-role messages must split on attachment, got %d entries", len(out))
	}
}

func TestConsolidateSplitsOnEmergencyFlag(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "General advice"}),
		stamped(chat.Message{
			ID: "a2", Role: chat.RoleAssistant, Content: "Call emergency services now",
			Metadata: chat.Metadata{IsEmergencyResponse: true},
		}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 2 {
		t.Fatalf("emergency flag change must start a new segment, got %d entries", len(out))
	}
}

func TestConsolidateSameIDStartsNewSegment(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "First answer"}),
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Up"}),
	}

	out := chatservice.Consolidate(in)
	if len(out) != 2 {
		t.Fatalf("repeated id must append a new segment, got %d entries", len(out))
	}
	if out[1].Content != "Up" {
		t.Fatalf("unexpected second segment: %+v", out[1])
	}
}

func TestConsolidateNormalizesAttachments(t *testing.T) {
	in := []chat.Message{
		{ID: "u1", Role: chat.RoleUser, Content: "photo",
			Attachments: []chat.Attachment{{Type: "file", Data: "aGVsbG8="}}},
	}

	out := chatservice.Consolidate(in)
	att := out[0].Attachments[0]
	if att.Type != chat.AttachmentImage {
		t.Fatalf("attachment type must be forced to image, got %q", att.Type)
	}
	if att.MimeType != "image/jpeg" {
		t.Fatalf("missing MIME type must default to image/jpeg, got %q", att.MimeType)
	}
	if out[0].Metadata.Timestamp.IsZero() {
		t.Fatal("missing timestamp must default to now")
	}
}

func TestConsolidateIdempotent(t *testing.T) {
	in := []chat.Message{
		stamped(chat.Message{ID: "u1", Role: chat.RoleUser, Content: "What causes chest pain?"}),
		stamped(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Chest"}),
		stamped(chat.Message{ID: "a2", Role: chat.RoleAssistant, Content: "Chest pain can"}),
		stamped(chat.Message{ID: "a3", Role: chat.RoleAssistant, Content: "Chest pain can have many causes."}),
		stamped(chat.Message{ID: "u2", Role: chat.RoleUser, Content: "picture",
			Attachments: []chat.Attachment{{Data: "aGVsbG8=", MimeType: "image/png"}}}),
		stamped(chat.Message{ID: "a4", Role: chat.RoleAssistant, Content: "Looks fine.",
			Metadata: chat.Metadata{IsEmergencyResponse: true}}),
	}

	once := chatservice.Consolidate(in)
	twice := chatservice.Consolidate(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("consolidation must be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestConsolidateEmptyInput(t *testing.T) {
	if out := chatservice.Consolidate(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %+v", out)
	}
}
