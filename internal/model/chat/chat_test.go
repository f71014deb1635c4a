package chat

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle(nil); got != "New Chat" {
		t.Fatalf("empty transcript must derive the default title, got %q", got)
	}

	short := []Message{{Role: RoleUser, Content: "What causes chest pain?"}}
	if got := DeriveTitle(short); got != "What causes chest pain?" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestDeriveTitleTruncatesOnRuneBoundary(t *testing.T) {
	// Three-byte runes land the 100-byte mark mid-rune.
	long := []Message{{Role: RoleUser, Content: strings.Repeat("胸", 150)}}

	got := DeriveTitle(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title must stay valid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) != TitleLimit {
		t.Fatalf("expected %d runes, got %d", TitleLimit, utf8.RuneCountInString(got))
	}
}
