package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/evaluation"
	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/logger"
)

// Runner schedules background work.
type Runner interface {
	Go(name string, task func(ctx context.Context)) bool
}

type GapsHandler struct {
	tracker    *gaps.Tracker
	evaluation *evaluation.Service
	runner     Runner
}

func NewGapsHandler(tracker *gaps.Tracker, evaluationSvc *evaluation.Service, runner Runner) *GapsHandler {
	return &GapsHandler{
		tracker:    tracker,
		evaluation: evaluationSvc,
		runner:     runner,
	}
}

// List filters by a comma-separated status list; "OPEN" also matches
// legacy gaps without a status.
func (h *GapsHandler) List(c *fiber.Ctx) error {
	var statuses []models.GapStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.GapStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !status.Valid() {
				return badRequest(c, "unknown gap status: "+s)
			}
			statuses = append(statuses, status)
		}
	}

	skip, take := page(c)
	list, total, err := h.tracker.List(c.UserContext(), models.GapFilter{
		Statuses: statuses,
		Search:   c.Query("search"),
		Skip:     skip,
		Take:     take,
	})
	if err != nil {
		return respondError(c, err, "list gaps")
	}

	return c.JSON(fiber.Map{
		"gaps":  list,
		"total": total,
		"skip":  skip,
		"take":  take,
	})
}

func (h *GapsHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	gap, err := h.tracker.CreateGap(c.UserContext(), req.Query)
	if err != nil {
		return respondError(c, err, "create gap")
	}

	return c.Status(fiber.StatusCreated).JSON(gap)
}

func (h *GapsHandler) CheckSimilarity(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	candidates, err := h.tracker.CheckSimilarity(c.UserContext(), req.Query)
	if err != nil {
		return respondError(c, err, "check similarity")
	}

	return c.JSON(fiber.Map{
		"query":       req.Query,
		"similar":     candidates,
		"has_similar": len(candidates) > 0,
	})
}

func (h *GapsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req struct {
		Status     string `json:"status"`
		AssignedTo string `json:"assigned_to"`
		ResolvedBy string `json:"resolved_by"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	status := models.GapStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	gap, err := h.tracker.UpdateStatus(c.UserContext(), c.Params("id"), status, req.AssignedTo, req.ResolvedBy)
	if err != nil {
		return respondError(c, err, "update gap status")
	}
	return c.JSON(gap)
}

func (h *GapsHandler) Evaluate(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	result, err := h.evaluation.EvaluateGap(c.UserContext(), c.Params("id"), req.Query)
	if err != nil {
		return respondError(c, err, "evaluate gap")
	}
	return c.JSON(result)
}

// EvaluateAll runs a full evaluation pass. With ?async=true the pass runs in
// the background and the request returns 202 immediately.
func (h *GapsHandler) EvaluateAll(c *fiber.Ctx) error {
	if c.QueryBool("async", false) {
		accepted := h.runner.Go("evaluate_all_gaps", func(ctx context.Context) {
			if _, err := h.evaluation.EvaluateAllOpenGaps(ctx); err != nil {
				logger.Error("Background gap evaluation failed", zap.Error(err))
			}
		})
		if !accepted {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Evaluation queue is full",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "accepted",
		})
	}

	report, err := h.evaluation.EvaluateAllOpenGaps(c.UserContext())
	if err != nil {
		return respondError(c, err, "evaluate gaps")
	}
	return c.JSON(report)
}

func (h *GapsHandler) MergeDuplicates(c *fiber.Ctx) error {
	report, err := h.tracker.MergeDuplicates(c.UserContext())
	if err != nil {
		return respondError(c, err, "merge duplicate gaps")
	}
	return c.JSON(report)
}
