package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/handler/chat"
	"github.com/anasify/dashboard/backend/internal/handler/chatbot"
	"github.com/anasify/dashboard/backend/internal/handler/realtime"
	middlewarePkg "github.com/anasify/dashboard/backend/internal/middleware"
	chatbotModel "github.com/anasify/dashboard/backend/internal/model/chatbot"
	chatService "github.com/anasify/dashboard/backend/internal/service/chat"
	trainingService "github.com/anasify/dashboard/backend/internal/service/training"
	"github.com/anasify/dashboard/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(bots chatbotModel.Store, exchanges *chatService.Service, trainingSvc *trainingService.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(exchanges, logger)
	chatbotHandler := chatbot.New(bots, trainingSvc, logger)
	wsHandler := realtime.New(exchanges, logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status": "ok",
				"ai":     exchanges.Available(),
			})
		})

		// Streaming chat proxy (SSE)
		chatHandler.RegisterRoutes(api)

		// Chatbot registry, training data and embed snippet
		chatbotHandler.RegisterRoutes(api)

		// Same exchange over websocket
		wsHandler.RegisterRoutes(api)
	})

	return r
}
