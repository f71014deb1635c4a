package chat

import "time"

// Roles a transcript entry can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// AttachmentImage is the only attachment type currently supported.
const AttachmentImage = "image"

// Attachment is a typed binary payload carried by a message.
type Attachment struct {
	Type       string `json:"type" bson:"type"`
	Data       string `json:"data" bson:"data"`
	MimeType   string `json:"mimeType,omitempty" bson:"mimeType,omitempty"`
	AnalysisID string `json:"analysisId,omitempty" bson:"analysisId,omitempty"`
}

// Metadata tracks per-message context. The field set is closed on
// purpose: anything a consumer needs must be enumerated here.
type Metadata struct {
	Timestamp           time.Time `json:"timestamp" bson:"timestamp"`
	IsFollowUp          bool      `json:"isFollowUp,omitempty" bson:"isFollowUp,omitempty"`
	Topic               string    `json:"topic,omitempty" bson:"topic,omitempty"`
	MessageType         string    `json:"messageType,omitempty" bson:"messageType,omitempty"`
	IsEmergencyResponse bool      `json:"isEmergencyResponse,omitempty" bson:"isEmergencyResponse,omitempty"`
}

// Message is one transcript entry. The ID is assigned at creation and
// never changes once the message has been consolidated; only the last
// entry of a transcript may still be rewritten while a reply streams.
type Message struct {
	ID          string       `json:"id" bson:"id"`
	Role        string       `json:"role" bson:"role"`
	Content     string       `json:"content" bson:"content"`
	Attachments []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
	Metadata    Metadata     `json:"metadata" bson:"metadata"`
}
