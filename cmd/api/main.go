package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medassist/med-ai/backend/internal/config"
	"github.com/medassist/med-ai/backend/internal/handler"
	chatHandler "github.com/medassist/med-ai/backend/internal/handler/chat"
	"github.com/medassist/med-ai/backend/internal/ratelimit"
	"github.com/medassist/med-ai/backend/internal/service/ai"
	chatservice "github.com/medassist/med-ai/backend/internal/service/chat"
	"github.com/medassist/med-ai/backend/internal/service/contexttrack"
	"github.com/medassist/med-ai/backend/internal/service/turn"
	"github.com/medassist/med-ai/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, continuing with system environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Logging)
	defer closeLog()
	slog.SetDefault(logger)

	// Wire the document store. Without a Mongo URI the service runs on
	// the in-memory store: fully functional, nothing survives restart.
	var chatStore store.ChatStore
	var rateStore store.RateLimitStore
	if cfg.Mongo.URI != "" {
		mongoStore, err := store.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}()

		if err := mongoStore.EnsureIndexes(ctx, cfg.RateLimit.AIWindow); err != nil {
			slog.Error("failed to ensure mongodb indexes", "error", err)
			os.Exit(1)
		}
		chatStore = mongoStore
		rateStore = mongoStore
		slog.Info("mongodb store initialized", "database", cfg.Mongo.Database)
	} else {
		mem := store.NewMemory()
		chatStore = mem
		rateStore = mem
		slog.Warn("MONGODB_URI not set, using in-memory store; transcripts will not survive restart")
	}

	chatSvc := chatservice.NewService(chatStore)

	tracker, err := contexttrack.New(cfg.Context.Capacity)
	if err != nil {
		slog.Error("failed to create context tracker", "error", err)
		os.Exit(1)
	}

	aiLimiter := ratelimit.New(rateStore, cfg.RateLimit.AILimit, cfg.RateLimit.AIWindow)
	edgeLimiter := ratelimit.New(store.NewMemory(), cfg.RateLimit.EdgeLimit, cfg.RateLimit.EdgeWindow)

	// Initialize the AI service, the turn orchestrator and the image
	// analyzer.
	var orchestrator *turn.Orchestrator
	var analyzer chatHandler.ImageAnalyzer
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			slog.Warn("failed to initialize AI service, continuing without streaming", "error", err)
		} else {
			orchestrator = turn.NewOrchestrator(aiLimiter, tracker, aiSvc, chatSvc, turn.Config{
				Timeout:           cfg.Turn.Timeout,
				StrictPersistence: cfg.Turn.StrictPersistence,
			})
			analyzer = aiSvc
			slog.Info("AI service initialized")
		}
	} else {
		slog.Info("model credentials not configured, AI streaming disabled")
	}

	router := handler.NewRouter(handler.Deps{
		ChatSvc:            chatSvc,
		Orchestrator:       orchestrator,
		Analyzer:           analyzer,
		AILimiter:          aiLimiter,
		EdgeLimiter:        edgeLimiter,
		MaxAttachmentBytes: cfg.Upload.MaxAttachmentBytes,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("med-ai backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
