package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/medassist/med-ai/backend/internal/handler/chat"
	streamHandler "github.com/medassist/med-ai/backend/internal/handler/stream"
	middlewarePkg "github.com/medassist/med-ai/backend/internal/middleware"
	"github.com/medassist/med-ai/backend/internal/ratelimit"
	chatService "github.com/medassist/med-ai/backend/internal/service/chat"
	"github.com/medassist/med-ai/backend/internal/service/turn"
	"github.com/medassist/med-ai/backend/pkg/utils"
)

// Deps carries everything the router wires together.
type Deps struct {
	ChatSvc            *chatService.Service
	Orchestrator       *turn.Orchestrator
	Analyzer           chatHandler.ImageAnalyzer
	AILimiter          *ratelimit.Limiter
	EdgeLimiter        *ratelimit.Limiter
	MaxAttachmentBytes int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	if deps.EdgeLimiter != nil {
		r.Use(middlewarePkg.RateLimit(deps.EdgeLimiter))
	}

	chats := chatHandler.New(deps.ChatSvc, deps.AILimiter, deps.Analyzer, deps.MaxAttachmentBytes)

	var streams *streamHandler.Handler
	if deps.Orchestrator != nil {
		streams = streamHandler.New(deps.Orchestrator, deps.ChatSvc)
	}

	r.Route("/api", func(api chi.Router) {
		chats.RegisterRoutes(api)

		api.Get("/stream/{chatID}", func(w http.ResponseWriter, r *http.Request) {
			chatID := chi.URLParam(r, "chatID")
			userMessage := r.URL.Query().Get("message")
			userID := r.URL.Query().Get("userId")

			if streams == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			clientID := middlewarePkg.ClientID(r)
			if err := streams.HandleStreamRequest(r.Context(), w, chatID, userID, userMessage, clientID); err != nil {
				slog.Error("stream request failed", "chat", chatID, "error", err)
			}
		})
	})

	return r
}
