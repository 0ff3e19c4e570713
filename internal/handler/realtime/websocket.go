package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	chatservice "github.com/anasify/dashboard/backend/internal/service/chat"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Handler WebSocket聊天处理器
type Handler struct {
	exchanges *chatservice.Service
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// New 创建WebSocket处理器
func New(exchanges *chatservice.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		exchanges: exchanges,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
	r.Get("/chatbots/{botID}/chat/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 串行化对同一连接的写入，gorilla/websocket 不支持并发写。
type connection struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connection) writeJSON(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接。同一连接上的交换按顺序逐个处理。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("[websocket] upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	conn := &connection{conn: ws}
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)

	h.logger.Info("[websocket] connection opened", zap.String("bot", botID), zap.String("remote", r.RemoteAddr))

	h.send(conn, "connected", map[string]any{"botId": botID})

	for {
		frameType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("[websocket] read error", zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		// 单个格式错误的帧只回复错误，连接保持打开。
		var msg inboundMessage
		if frameType != websocket.TextMessage || json.Unmarshal(raw, &msg) != nil {
			h.sendError(conn, "invalid frame: expected a JSON text message")
			continue
		}

		switch msg.Type {
		case "chat":
			if err := h.handleChat(ctx, conn, botID, msg.Data); err != nil {
				h.logger.Info("[websocket] write failed, closing", zap.Error(err))
				return
			}
			// 交换可能持续到截止时间，结束后重新计算读超时。
			ws.SetReadDeadline(time.Now().Add(pongWait))
		case "ping":
			h.send(conn, "pong", nil)
		default:
			h.sendError(conn, "unsupported message type: "+msg.Type)
		}
	}
}

// handleChat 运行一次交换，只有写失败时才返回错误。
func (h *Handler) handleChat(ctx context.Context, conn *connection, botID string, raw json.RawMessage) error {
	var payload chat.Request
	if err := json.Unmarshal(raw, &payload); err != nil {
		return h.sendError(conn, "invalid chat payload")
	}

	exchange, err := h.exchanges.Prepare(ctx, chatservice.ExchangeRequest{BotID: botID, Messages: payload.Messages})
	if err != nil {
		return h.sendError(conn, err.Error())
	}

	var writeErr error
	_, err = h.exchanges.Run(ctx, exchange, func(ev chat.Event) error {
		if err := conn.writeJSON(outgoingMessage{Type: ev.Event, Data: ev, Timestamp: time.Now().Unix()}); err != nil {
			writeErr = err
			return err
		}
		return nil
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		h.logger.Info("[websocket] exchange ended early", zap.String("exchange", exchange.ID), zap.Error(err))
	}
	return nil
}

func (h *Handler) send(conn *connection, msgType string, data interface{}) error {
	err := conn.writeJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		h.logger.Debug("[websocket] write failed", zap.String("type", msgType), zap.Error(err))
	}
	return err
}

func (h *Handler) sendError(conn *connection, message string) error {
	return h.send(conn, chat.EventError, chat.Event{Event: chat.EventError, Error: message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
