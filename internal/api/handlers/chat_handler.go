package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/chat"
	"github.com/telemed-faq/backend/internal/middleware/validation"
	"github.com/telemed-faq/backend/pkg/logger"
)

type ChatHandler struct {
	engine *chat.Engine
}

func NewChatHandler(engine *chat.Engine) *ChatHandler {
	return &ChatHandler{
		engine: engine,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req chat.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	if sanitized, ok := c.Locals(validation.SanitizedMessageKey).(string); ok {
		req.Message = sanitized
	}
	if req.SessionID == "" {
		// Header values alias the request buffer, which fasthttp reuses.
		req.SessionID = utils.CopyString(c.Get("X-Session-ID"))
	}
	req.Transport = "http"

	response, err := h.engine.HandleMessage(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "process message")
	}

	return c.JSON(response)
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	sessionID := utils.CopyString(c.Query("session_id"))
	if sessionID == "" {
		return badRequest(c, "session_id is required")
	}

	messages, err := h.engine.History(c.UserContext(), sessionID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err, "load history")
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *ChatHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		MatchID string `json:"match_id"`
		Helpful *bool  `json:"helpful"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.MatchID == "" || req.Helpful == nil {
		return badRequest(c, "match_id and helpful are required")
	}

	if err := h.engine.RecordFeedback(c.UserContext(), req.MatchID, *req.Helpful); err != nil {
		return respondError(c, err, "record feedback")
	}

	return c.JSON(fiber.Map{
		"match_id": req.MatchID,
		"helpful":  *req.Helpful,
	})
}
