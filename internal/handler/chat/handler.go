package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medassist/med-ai/backend/internal/middleware"
	chatModel "github.com/medassist/med-ai/backend/internal/model/chat"
	"github.com/medassist/med-ai/backend/internal/ratelimit"
	chatService "github.com/medassist/med-ai/backend/internal/service/chat"
	"github.com/medassist/med-ai/backend/pkg/utils"
)

// ImageAnalyzer produces a medical observation for one uploaded image.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, att chatModel.Attachment) (string, error)
}

// analysisFallback stands in for the observation when the model cannot
// analyze an uploaded image.
const analysisFallback = "Sorry, I encountered an error analyzing the image. Please ensure it's a valid medical image and try again."

// Handler exposes conversation records over HTTP.
type Handler struct {
	chatSvc            *chatService.Service
	aiLimiter          *ratelimit.Limiter
	analyzer           ImageAnalyzer
	maxAttachmentBytes int
}

// New creates the chat handler. A nil analyzer disables image analysis;
// attachments are then stored without an observation.
func New(chatSvc *chatService.Service, aiLimiter *ratelimit.Limiter, analyzer ImageAnalyzer, maxAttachmentBytes int) *Handler {
	return &Handler{
		chatSvc:            chatSvc,
		aiLimiter:          aiLimiter,
		analyzer:           analyzer,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// RegisterRoutes registers the chat REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chats", h.handleCreateChat)
	r.Get("/chats", h.handleListChats)
	r.Delete("/chats", h.handleClearChats)
	r.Get("/chats/{chatID}", h.handleGetChat)
	r.Delete("/chats/{chatID}", h.handleRemoveChat)
	r.Post("/chats/{chatID}/share", h.handleShareChat)
	r.Post("/chats/{chatID}/messages", h.handleAppendMessage)
	r.Get("/share/{chatID}", h.handleGetSharedChat)
	r.Get("/limits", h.handleGetLimits)
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	now := time.Now().UTC()
	c := &chatModel.Chat{
		ID:        uuid.NewString(),
		Title:     "New Chat",
		UserID:    payload.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Path = "/chat/" + c.ID

	if err := h.chatSvc.SaveChat(r.Context(), c); err != nil {
		chatService.LogPersistFailure(c.ID, err)
	}

	utils.RespondJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	chats, err := h.chatSvc.ListChats(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []chatModel.Chat{}
	}
	utils.RespondJSON(w, http.StatusOK, chats)
}

func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := r.URL.Query().Get("userId")

	c, err := h.chatSvc.GetChat(r.Context(), chatID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleRemoveChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	if err := h.chatSvc.RemoveChat(r.Context(), chatID, userID); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleClearChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	if err := h.chatSvc.ClearChats(r.Context(), userID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear chats")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleShareChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shared, err := h.chatSvc.ShareChat(r.Context(), chatID, payload.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, shared)
}

func (h *Handler) handleGetSharedChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	c, err := h.chatSvc.GetSharedChat(r.Context(), chatID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, c)
}

// handleAppendMessage stores a user message, typically one carrying
// image attachments. Validation happens before any transcript
// mutation. When an analyzer is wired, each attachment is run through
// the model and the observation is appended as an assistant message
// linked back to the attachment.
func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var payload struct {
		UserID      string                 `json:"userId"`
		Content     string                 `json:"content"`
		Attachments []chatModel.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Content == "" && len(payload.Attachments) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "content or attachments required")
		return
	}

	if err := chatModel.ValidateAttachments(payload.Attachments, h.maxAttachmentBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(payload.Attachments) > 0 && h.analyzer != nil {
		if _, err := h.aiLimiter.Admit(r.Context(), middleware.ClientID(r)); err != nil {
			var denied *ratelimit.DeniedError
			if errors.As(err, &denied) {
				w.Header().Set("Retry-After", strconv.Itoa(denied.RetryAfterSeconds()))
				utils.RespondError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}
	}

	c, err := h.chatSvc.GetChat(r.Context(), chatID, payload.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	msg := chatModel.Message{
		ID:          uuid.NewString(),
		Role:        chatModel.RoleUser,
		Content:     payload.Content,
		Attachments: payload.Attachments,
		Metadata:    chatModel.Metadata{Timestamp: time.Now().UTC()},
	}

	appended := []chatModel.Message{msg}
	if h.analyzer != nil {
		for i := range msg.Attachments {
			analysis := h.analyzeAttachment(r.Context(), c.ID, &msg.Attachments[i])
			appended = append(appended, analysis)
		}
	}
	c.Messages = append(c.Messages, appended...)

	if err := h.chatSvc.SaveChat(r.Context(), c); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to save message")
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, appended)
}

// analyzeAttachment produces the observation message for one uploaded
// image. Failures degrade to a fallback observation rather than losing
// the upload.
func (h *Handler) analyzeAttachment(ctx context.Context, chatID string, att *chatModel.Attachment) chatModel.Message {
	analysis := chatModel.Message{
		ID:   uuid.NewString(),
		Role: chatModel.RoleAssistant,
		Metadata: chatModel.Metadata{
			Timestamp:   time.Now().UTC(),
			MessageType: "image_analysis",
		},
	}

	content, err := h.analyzer.AnalyzeImage(ctx, *att)
	if err != nil {
		slog.Error("image analysis failed", "chat", chatID, "error", err)
		analysis.Content = analysisFallback
		return analysis
	}

	analysis.Content = content
	att.AnalysisID = analysis.ID
	return analysis
}

func (h *Handler) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	info := h.aiLimiter.Info(r.Context(), middleware.ClientID(r))
	utils.RespondJSON(w, http.StatusOK, info)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrChatNotFound), errors.Is(err, chatService.ErrNotShared):
		utils.RespondError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, chatService.ErrUnauthorized):
		utils.RespondError(w, http.StatusForbidden, "unauthorized")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
