package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

// pronounPattern matches, as whole words, the pronouns that signal a
// message leans on an earlier topic instead of stating its own.
var pronounPattern = regexp.MustCompile(`(?i)\b(it|this|that|these|those|they|them)\b`)

// topicScanDepth bounds how far back the topic scan looks.
const topicScanDepth = 5

// HasPronouns reports whether text contains a referential pronoun.
func HasPronouns(text string) bool {
	return pronounPattern.MatchString(text)
}

// FindMainTopic scans the most recent messages newest-first and returns
// the content of the first user message that stands on its own, i.e.
// carries no pronouns.
func FindMainTopic(messages []chat.Message) (string, bool) {
	start := len(messages) - topicScanDepth
	if start < 0 {
		start = 0
	}

	for i := len(messages) - 1; i >= start; i-- {
		msg := messages[i]
		if msg.Role == chat.RoleUser && !HasPronouns(msg.Content) {
			return msg.Content, true
		}
	}
	return "", false
}

// IsFollowUp reports whether current relies on pronoun reference to a
// topic established earlier in history.
func IsFollowUp(current string, history []chat.Message) bool {
	if !HasPronouns(current) {
		return false
	}
	_, ok := FindMainTopic(history)
	return ok
}

// ShouldUpdateContext reports whether message should replace the tracked
// conversation context. A self-contained statement always establishes a
// new topic; so does any message when no context exists yet.
func ShouldUpdateContext(message string, current *chat.ConversationContext) bool {
	return !HasPronouns(message) || current == nil
}

const basePrompt = `You are Med AI, an AI medical assistant designed to help users with general medical queries and concerns.

Instructions:
1. ALWAYS maintain conversation context
2. EXPLICITLY reference the topic being discussed
3. If using pronouns, clearly state what they refer to
4. Never provide definitive diagnoses
5. Always recommend consulting healthcare professionals
`

// BuildSystemPrompt renders the system instruction for one turn. When a
// tracked topic exists, the prompt directs the model to restate it and
// connect the reply back to the earlier discussion.
func BuildSystemPrompt(current string, context *chat.ConversationContext) string {
	if context == nil || context.CurrentTopic == "" {
		return basePrompt
	}

	var builder strings.Builder
	builder.WriteString(basePrompt)
	topic := context.CurrentTopic
	builder.WriteString(fmt.Sprintf("\nCurrent Topic: %q\n", topic))
	builder.WriteString(fmt.Sprintf("Previous Discussion: This conversation is about %s.\n", topic))
	builder.WriteString(fmt.Sprintf("Current Query: This appears to be a follow-up question about %s.\n", topic))
	builder.WriteString("\nWhen responding:\n")
	builder.WriteString(fmt.Sprintf("- Explicitly mention that you are talking about %s\n", topic))
	builder.WriteString(fmt.Sprintf("- Connect your response to the previous discussion about %s\n", topic))
	builder.WriteString("- Make sure to maintain continuity with the earlier conversation\n")
	return builder.String()
}
