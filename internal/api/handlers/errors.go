package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/chat"
	"github.com/telemed-faq/backend/internal/evaluation"
	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/knowledge"
	"github.com/telemed-faq/backend/internal/tuning"
	"github.com/telemed-faq/backend/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respondError maps service sentinels to status codes. Anything unmapped is
// logged and reported as a generic 500.
func respondError(c *fiber.Ctx, err error, action string) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		logger.Error("Failed to "+action,
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{
			"error": "Failed to " + action,
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gaps.ErrNotFound),
		errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, evaluation.ErrEntryNotFound),
		errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, chat.ErrMatchNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, gaps.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, gaps.ErrInvalidStatus),
		errors.Is(err, gaps.ErrEmptyQuery),
		errors.Is(err, knowledge.ErrInvalidEntry),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, tuning.ErrInvalidThreshold):
		return fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// page reads skip/take query parameters, clamping take to maxPageSize.
func page(c *fiber.Ctx) (skip, take int) {
	skip = max(c.QueryInt("skip", 0), 0)
	take = c.QueryInt("take", defaultPageSize)
	if take <= 0 {
		take = defaultPageSize
	}
	return skip, min(take, maxPageSize)
}
