package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/config"
	"github.com/anasify/dashboard/backend/internal/handler"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/ai"
	chatservice "github.com/anasify/dashboard/backend/internal/service/chat"
	handoffservice "github.com/anasify/dashboard/backend/internal/service/handoff"
	"github.com/anasify/dashboard/backend/internal/service/training"
	"github.com/anasify/dashboard/backend/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("failed to open chatbot store", zap.Error(err))
	}
	defer closeStore()
	logger.Info("chatbot store ready", zap.String("driver", cfg.Store.Driver))

	// Initialize AI service
	var generator chatservice.Generator
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = newAIService(ctx, cfg, logger)
		if err != nil {
			logger.Warn("failed to initialize AI service, chat endpoints will return 503", zap.Error(err))
		} else {
			generator = aiService
			logger.Info("AI service initialized", zap.String("provider", string(cfg.AI.Provider)), zap.Bool("stream", cfg.AI.StreamResponse))
		}
	} else {
		logger.Warn("AI credentials not configured, chat endpoints will return 503", zap.String("provider", string(cfg.AI.Provider)))
	}

	// Initialize handoff assessment (LLM classifier with heuristic fallback)
	handoffCfg := handoffservice.Config{
		Enabled:      cfg.AI.HandoffLLMEnabled,
		HistoryLimit: cfg.AI.HandoffHistoryLimit,
	}
	var chatModelForHandoff model.BaseChatModel
	if aiService != nil {
		chatModelForHandoff = aiService.ChatModel()
	}
	handoffSvc, err := handoffservice.NewService(ctx, chatModelForHandoff, handoffCfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize handoff service", zap.Error(err))
	}
	switch {
	case handoffSvc.Enabled():
		logger.Info("handoff classifier enabled")
	case handoffCfg.Enabled:
		logger.Info("handoff classifier requested but chat model unavailable, falling back to heuristics")
	}

	exchanges := chatservice.NewService(generator, store, handoffSvc, chatservice.Options{MaxDuration: cfg.Chat.MaxDuration}, logger)
	trainingSvc := training.NewService(store, training.NewHTTPFetcher(cfg.Training.FetchTimeout, cfg.Training.MaxPageBytes), logger)

	router := handler.NewRouter(store, exchanges, trainingSvc, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newAIService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.Service, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewService(ctx, chatModel, ai.Options{
		Streaming:     cfg.AI.StreamResponse,
		ContextBudget: cfg.Training.ContextBudget,
	}, logger)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (chatbot.Store, func(), error) {
	seed := chatbot.Seed(time.Now().UTC())

	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Seed(ctx, seed); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "memory", "":
		return chatbot.NewMemoryStore(seed), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Anasify backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
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
