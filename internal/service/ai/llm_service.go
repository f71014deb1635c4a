package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/medassist/med-ai/backend/internal/config"
	"github.com/medassist/med-ai/backend/internal/model/chat"
)

// historyLimit caps how much transcript is replayed to the model.
const historyLimit = 10

// Producer is the opaque streaming text producer a turn consumes. The
// returned stream is lazy, finite and not restartable.
type Producer interface {
	StreamReply(ctx context.Context, system string, history []chat.Message, query string) (*schema.StreamReader[*schema.Message], error)
}

// Generator is implemented by producers that can also answer in one
// shot. Turns consult it to honor a disabled streaming mode.
type Generator interface {
	StreamingEnabled() bool
	GenerateReply(ctx context.Context, system string, history []chat.Message, query string) (*schema.Message, error)
}

// Service drives the chat model through a compiled eino chain.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service and compiles its prompt chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, cfg: cfg, chain: runnable}, nil
}

// StreamingEnabled indicates whether replies stream delta by delta.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// StreamReply streams model output for one turn.
func (s *Service) StreamReply(ctx context.Context, system string, history []chat.Message, query string) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, chainInput(system, history, query))
	if err != nil {
		return nil, fmt.Errorf("failed to stream model output: %w", err)
	}
	return stream, nil
}

// GenerateReply produces a complete reply in one call, for callers that
// do not stream.
func (s *Service) GenerateReply(ctx context.Context, system string, history []chat.Message, query string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, chainInput(system, history, query))
	if err != nil {
		return nil, fmt.Errorf("failed to run model chain: %w", err)
	}

	slog.Debug("generated reply", "length", len(response.Content))
	return response, nil
}

// analysisPrompt asks for observations only; the model must not turn
// an uploaded image into a diagnosis.
const analysisPrompt = `Please analyze this medical image and provide:
1. A clear description of what you observe
2. Any notable features or patterns
3. Important medical context that might be relevant

Note: This is an AI observation only, not a medical diagnosis. Any concerning findings should be evaluated by a healthcare professional.`

// AnalyzeImage runs an uploaded image through the model and returns the
// observation text. The prompt chain is bypassed: image input goes to
// the model directly as a multimodal message.
func (s *Service) AnalyzeImage(ctx context.Context, att chat.Attachment) (string, error) {
	payload := att.Data
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	messages := []*schema.Message{
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: analysisPrompt},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL: "data:" + mimeType + ";base64," + payload,
					},
				},
			},
		},
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}

	slog.Debug("analyzed image", "length", len(response.Content))
	return response.Content, nil
}

func chainInput(system string, history []chat.Message, query string) map[string]any {
	return map[string]any{
		"system":  system,
		"history": historyMessages(history),
		"query":   query,
	}
}

// historyMessages converts the most recent transcript entries into
// model messages. System entries are not replayed.
func historyMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
