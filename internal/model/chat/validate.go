package chat

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMaxAttachmentBytes caps decoded attachment payloads.
const DefaultMaxAttachmentBytes = 4 << 20

// ValidationError reports a malformed message or attachment. Requests
// failing validation are rejected before any transcript mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateAttachments checks attachment payloads against the supported
// type set and the configured size cap. maxBytes <= 0 applies the
// default cap.
func ValidateAttachments(attachments []Attachment, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}

	for i, att := range attachments {
		field := fmt.Sprintf("attachments[%d]", i)

		if att.Type != "" && att.Type != AttachmentImage {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("unsupported type %q", att.Type)}
		}
		if att.MimeType != "" && !strings.HasPrefix(att.MimeType, "image/") {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("unsupported mime type %q", att.MimeType)}
		}
		if strings.TrimSpace(att.Data) == "" {
			return &ValidationError{Field: field, Reason: "empty payload"}
		}

		// Strip a data URL prefix before decoding, matching what clients send.
		payload := att.Data
		if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
			payload = payload[idx+len(";base64,"):]
		}

		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return &ValidationError{Field: field, Reason: "payload is not valid base64"}
		}
		if len(decoded) > maxBytes {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("payload exceeds %d bytes", maxBytes)}
		}
	}

	return nil
}
