package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	chatService "github.com/anasify/dashboard/backend/internal/service/chat"
	"github.com/anasify/dashboard/backend/pkg/utils"
)

const maxRequestBytes = 1 << 20

// Handler 聊天代理接口的HTTP处理器
type Handler struct {
	exchanges *chatService.Service
	logger    *zap.Logger
}

// New 创建聊天处理器
func New(exchanges *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		exchanges: exchanges,
		logger:    logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chatbots/{botID}/chat", h.handleChat)
}

// handleChat 校验请求后以 SSE 流式返回助手回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chat.Request
	if err := utils.DecodeJSON(w, r, maxRequestBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	botID := chi.URLParam(r, "botID")
	exchange, err := h.exchanges.Prepare(r.Context(), chatService.ExchangeRequest{
		BotID:    botID,
		Messages: payload.Messages,
	})
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("[chat] prepare exchange failed", zap.String("bot", botID), zap.Error(err))
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := h.exchanges.Run(r.Context(), exchange, func(ev chat.Event) error {
		return sse.Send(ev)
	}); err != nil {
		h.logger.Info("[chat] exchange ended early", zap.String("exchange", exchange.ID), zap.Error(err))
	}
}

// StatusFor maps exchange preparation errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrNoMessages), errors.Is(err, chat.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatbot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
