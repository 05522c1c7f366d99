package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/telemed-faq/backend/internal/evaluation"
	"github.com/telemed-faq/backend/internal/knowledge"
	"github.com/telemed-faq/backend/internal/retrieval"
	"github.com/telemed-faq/backend/internal/storage/models"
)

type KnowledgeHandler struct {
	knowledge  *knowledge.Service
	retrieval  *retrieval.Service
	evaluation *evaluation.Service
}

func NewKnowledgeHandler(knowledgeSvc *knowledge.Service, retrievalSvc *retrieval.Service, evaluationSvc *evaluation.Service) *KnowledgeHandler {
	return &KnowledgeHandler{
		knowledge:  knowledgeSvc,
		retrieval:  retrievalSvc,
		evaluation: evaluationSvc,
	}
}

// Search is the public knowledge lookup used by the chat widget.
func (h *KnowledgeHandler) Search(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return badRequest(c, "q is required")
	}

	limit := min(max(c.QueryInt("limit", retrieval.DefaultLimit), 1), 20)
	results := h.retrieval.Search(c.UserContext(), q, limit)

	return c.JSON(fiber.Map{
		"query":   q,
		"results": results,
	})
}

func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	skip, take := page(c)
	filter := models.EntryFilter{
		Category:     models.Category(c.Query("category")),
		ReviewedOnly: c.QueryBool("reviewed", false),
		Search:       c.Query("search"),
		Skip:         skip,
		Take:         take,
	}

	entries, total, err := h.knowledge.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "list entries")
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   total,
		"skip":    skip,
		"take":    take,
	})
}

func (h *KnowledgeHandler) Create(c *fiber.Ctx) error {
	var req knowledge.CreateInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	entry, err := h.knowledge.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "create entry")
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *KnowledgeHandler) Get(c *fiber.Ctx) error {
	entry, err := h.knowledge.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "get entry")
	}
	return c.JSON(entry)
}

func (h *KnowledgeHandler) Update(c *fiber.Ctx) error {
	var req knowledge.UpdateInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	entry, err := h.knowledge.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return respondError(c, err, "update entry")
	}
	return c.JSON(entry)
}

func (h *KnowledgeHandler) Review(c *fiber.Ctx) error {
	var req struct {
		Reviewer string `json:"reviewer"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	entry, err := h.knowledge.Review(c.UserContext(), c.Params("id"), req.Reviewer)
	if err != nil {
		return respondError(c, err, "review entry")
	}
	return c.JSON(entry)
}

func (h *KnowledgeHandler) Versions(c *fiber.Ctx) error {
	versions, err := h.knowledge.Versions(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "list versions")
	}

	return c.JSON(fiber.Map{
		"entry_id": c.Params("id"),
		"versions": versions,
	})
}

// EvaluateGaps re-checks open gaps against one entry synchronously.
func (h *KnowledgeHandler) EvaluateGaps(c *fiber.Ctx) error {
	report, err := h.evaluation.EvaluateGapsForNewEntry(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "evaluate gaps")
	}
	return c.JSON(report)
}

func (h *KnowledgeHandler) Import(c *fiber.Ctx) error {
	var req knowledge.ImportInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	entry, err := h.knowledge.Import(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "import article")
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}
