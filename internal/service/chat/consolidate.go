package chat

import (
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

// Consolidate folds a raw, possibly fragmented message sequence into a
// canonical transcript. Streaming deltas arrive as repeated entries that
// grow in place; the fold keeps the longest variant of each segment and
// starts a new segment whenever the role, the emergency flag, or the
// attachment presence changes. A message repeating the previous entry's
// id also starts a new segment rather than patching it; the persistence
// diff relies on that literal behavior.
//
// The fold is idempotent: running it over its own output changes
// nothing, because adjacent entries already differ by one of the
// segment-break conditions.
func Consolidate(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))

	for _, curr := range messages {
		processed := processMessage(curr)

		if len(out) == 0 {
			out = append(out, processed)
			continue
		}

		last := out[len(out)-1]
		newSegment := last.Role != curr.Role ||
			last.Metadata.IsEmergencyResponse != curr.Metadata.IsEmergencyResponse ||
			curr.ID == last.ID ||
			len(curr.Attachments) > 0

		switch {
		case newSegment:
			out = append(out, processed)
		case len(curr.Content) > len(last.Content):
			out[len(out)-1] = processed
		}
		// Shorter same-segment fragments are stale deltas; drop them.
	}

	return out
}

// processMessage normalizes a message for storage: attachments are
// forced to the image type with a JPEG MIME fallback, and the metadata
// timestamp defaults to now.
func processMessage(msg chat.Message) chat.Message {
	if len(msg.Attachments) > 0 {
		normalized := make([]chat.Attachment, len(msg.Attachments))
		for i, att := range msg.Attachments {
			att.Type = chat.AttachmentImage
			if att.MimeType == "" {
				att.MimeType = "image/jpeg"
			}
			normalized[i] = att
		}
		msg.Attachments = normalized
	}

	if msg.Metadata.Timestamp.IsZero() {
		msg.Metadata.Timestamp = time.Now().UTC()
	}

	return msg
}
