package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/medassist/med-ai/backend/internal/model/chat"
	"github.com/medassist/med-ai/backend/internal/ratelimit"
	chatService "github.com/medassist/med-ai/backend/internal/service/chat"
	"github.com/medassist/med-ai/backend/internal/service/turn"
	"github.com/medassist/med-ai/backend/pkg/utils"
)

// Handler streams one turn's assistant reply via Server-Sent Events.
type Handler struct {
	orchestrator *turn.Orchestrator
	chatSvc      *chatService.Service
}

// New creates the stream handler.
func New(orchestrator *turn.Orchestrator, chatSvc *chatService.Service) *Handler {
	return &Handler{orchestrator: orchestrator, chatSvc: chatSvc}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event      string `json:"event"`
	Content    string `json:"content,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn for chatID and streams the reply.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, chatID, userID, userMessage, clientID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	working, err := h.loadOrCreateChat(ctx, chatID, userID)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to load chat: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "start", ChatID: working.ID})

	out, runErr := h.orchestrator.Run(ctx, turn.Input{
		Chat:     working,
		ClientID: clientID,
		Message:  userMessage,
		OnDelta: func(delta, _ string) {
			h.sendSSE(w, flusher, StreamResponse{Event: "delta", ChatID: working.ID, Content: delta})
		},
	})

	var denied *ratelimit.DeniedError
	switch {
	case errors.As(runErr, &denied):
		h.sendSSE(w, flusher, StreamResponse{
			Event:      "rate_limited",
			ChatID:     working.ID,
			RetryAfter: denied.RetryAfterSeconds(),
			Error:      "rate limit exceeded",
		})
		return runErr
	case errors.Is(runErr, turn.ErrCancelled):
		slog.Info("stream cancelled by client", "chat", working.ID)
		return nil
	case errors.Is(runErr, turn.ErrProducer):
		// The fallback reply is already in the persisted transcript;
		// surface it like a normal message so the user sees it.
		h.sendSSE(w, flusher, StreamResponse{Event: "message", ChatID: working.ID, Content: out.Reply.Content})
		h.sendSSE(w, flusher, StreamResponse{Event: "end", ChatID: working.ID, Finished: true})
		return nil
	case runErr != nil:
		h.sendSSEError(w, flusher, fmt.Sprintf("turn failed: %v", runErr))
		return runErr
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "message", ChatID: working.ID, Content: out.Reply.Content})
	h.sendSSE(w, flusher, StreamResponse{Event: "end", ChatID: working.ID, Finished: true})

	slog.Info("stream completed", "chat", working.ID, "persisted", out.Persisted)
	return nil
}

// loadOrCreateChat resolves the working transcript. Unknown chat ids
// start a fresh conversation under that id.
func (h *Handler) loadOrCreateChat(ctx context.Context, chatID, userID string) (*chat.Chat, error) {
	existing, err := h.chatSvc.GetChat(ctx, chatID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, chatService.ErrChatNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	return &chat.Chat{
		ID:        chatID,
		Title:     "New Chat",
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Path:      "/chat/" + chatID,
	}, nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: errorMsg})
}
