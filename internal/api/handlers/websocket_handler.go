package handlers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/chat"
	"github.com/telemed-faq/backend/pkg/logger"
)

// wsTurnTimeout bounds one chat turn over the socket.
const wsTurnTimeout = 60 * time.Second

type WebSocketHandler struct {
	engine        *chat.Engine
	maxMessageLen int
}

func NewWebSocketHandler(engine *chat.Engine, maxMessageLen int) *WebSocketHandler {
	return &WebSocketHandler{
		engine:        engine,
		maxMessageLen: maxMessageLen,
	}
}

type wsInbound struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Platform  string `json:"platform"`
}

// HandleConnection serves chat turns over one socket. Each "message" frame
// gets a status frame, the reply as word chunks, and a complete frame.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	sessionID := c.Query("session_id")

	for {
		var msg wsInbound
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type != "message" {
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		if h.maxMessageLen > 0 && utf8.RuneCountInString(msg.Content) > h.maxMessageLen {
			h.sendError(c, "Message exceeds maximum length")
			continue
		}

		response, err := h.handleTurn(c, msg)
		if err != nil {
			logger.Error("Failed to stream reply", zap.Error(err))
			h.sendError(c, "Failed to process message")
			continue
		}
		sessionID = response.SessionID
	}
}

func (h *WebSocketHandler) handleTurn(c *websocket.Conn, msg wsInbound) (*chat.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wsTurnTimeout)
	defer cancel()

	if err := h.send(c, "status", "Processing message..."); err != nil {
		return nil, err
	}

	response, err := h.engine.HandleMessage(ctx, chat.ChatRequest{
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
		Message:   strings.ReplaceAll(msg.Content, "\x00", ""),
		Platform:  msg.Platform,
		Transport: "websocket",
	})
	if err != nil {
		return nil, err
	}

	words := strings.Fields(response.Reply)
	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		if err := h.send(c, "chunk", word); err != nil {
			return nil, err
		}
	}

	return response, c.WriteJSON(map[string]interface{}{
		"type":            "complete",
		"session_id":      response.SessionID,
		"match_id":        response.MatchID,
		"sources":         response.Sources,
		"knowledge_found": response.KnowledgeFound,
		"escalate":        response.Escalate,
		"latency_ms":      response.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	if err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}
