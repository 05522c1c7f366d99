package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/middleware/validation"
)

type Handlers struct {
	Chat      *ChatHandler
	WebSocket *WebSocketHandler
	Knowledge *KnowledgeHandler
	Gaps      *GapsHandler
	Admin     *AdminHandler
	Health    *HealthHandler
}

// RegisterRoutes mounts the API. chatLimit guards the chat endpoints and
// may be nil.
func RegisterRoutes(app *fiber.App, h Handlers, chatLimit fiber.Handler, payload validation.Config) {
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Use(validation.ContentType(payload))

	limited := func(handlers ...fiber.Handler) []fiber.Handler {
		if chatLimit == nil {
			return handlers
		}
		return append([]fiber.Handler{chatLimit}, handlers...)
	}

	api.Post("/chat", limited(validation.ChatMessage(payload), h.Chat.HandleChat)...)
	api.Get("/chat/history", h.Chat.GetHistory)
	api.Post("/chat/feedback", h.Chat.HandleFeedback)
	api.Get("/ws", limited(upgradeOnly, websocket.New(h.WebSocket.HandleConnection))...)

	api.Get("/knowledge/search", h.Knowledge.Search)

	admin := api.Group("/admin")

	admin.Get("/knowledge", h.Knowledge.List)
	admin.Post("/knowledge", h.Knowledge.Create)
	admin.Post("/knowledge/import", validation.ImportPayload(payload), h.Knowledge.Import)
	admin.Get("/knowledge/:id", h.Knowledge.Get)
	admin.Put("/knowledge/:id", h.Knowledge.Update)
	admin.Post("/knowledge/:id/review", h.Knowledge.Review)
	admin.Get("/knowledge/:id/versions", h.Knowledge.Versions)
	admin.Post("/knowledge/:id/evaluate-gaps", h.Knowledge.EvaluateGaps)

	admin.Get("/gaps", h.Gaps.List)
	admin.Post("/gaps", h.Gaps.Create)
	admin.Post("/gaps/check-similarity", h.Gaps.CheckSimilarity)
	admin.Post("/gaps/evaluate-all", h.Gaps.EvaluateAll)
	admin.Post("/gaps/merge-duplicates", h.Gaps.MergeDuplicates)
	admin.Patch("/gaps/:id/status", h.Gaps.UpdateStatus)
	admin.Post("/gaps/:id/evaluate", h.Gaps.Evaluate)

	admin.Get("/settings/gaps", h.Admin.GetSettings)
	admin.Put("/settings/gaps", h.Admin.UpdateSettings)
	admin.Get("/analytics", h.Admin.Analytics)
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
