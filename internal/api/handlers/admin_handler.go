package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/telemed-faq/backend/internal/analytics"
	"github.com/telemed-faq/backend/internal/tuning"
)

type AdminHandler struct {
	settings  *tuning.Store
	analytics *analytics.Service
}

func NewAdminHandler(settings *tuning.Store, analyticsSvc *analytics.Service) *AdminHandler {
	return &AdminHandler{
		settings:  settings,
		analytics: analyticsSvc,
	}
}

// settingsBody is the wire form of tuning.Settings. Delays are Go duration
// strings such as "250ms". Omitted fields keep their current value.
type settingsBody struct {
	RelevanceCutoff     *float64 `json:"relevance_cutoff"`
	ResolutionThreshold *float64 `json:"resolution_threshold"`
	MergeThreshold      *float64 `json:"merge_threshold"`
	DuplicateThreshold  *float64 `json:"duplicate_threshold"`
	NewEntryThreshold   *float64 `json:"new_entry_threshold"`
	BatchSize           *int     `json:"batch_size"`
	ItemDelay           *string  `json:"item_delay"`
	BatchDelay          *string  `json:"batch_delay"`
}

func toBody(s tuning.Settings) settingsBody {
	itemDelay, batchDelay := s.ItemDelay.String(), s.BatchDelay.String()
	return settingsBody{
		RelevanceCutoff:     &s.RelevanceCutoff,
		ResolutionThreshold: &s.ResolutionThreshold,
		MergeThreshold:      &s.MergeThreshold,
		DuplicateThreshold:  &s.DuplicateThreshold,
		NewEntryThreshold:   &s.NewEntryThreshold,
		BatchSize:           &s.BatchSize,
		ItemDelay:           &itemDelay,
		BatchDelay:          &batchDelay,
	}
}

func (b settingsBody) apply(s tuning.Settings) (tuning.Settings, error) {
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat(&s.RelevanceCutoff, b.RelevanceCutoff)
	setFloat(&s.ResolutionThreshold, b.ResolutionThreshold)
	setFloat(&s.MergeThreshold, b.MergeThreshold)
	setFloat(&s.DuplicateThreshold, b.DuplicateThreshold)
	setFloat(&s.NewEntryThreshold, b.NewEntryThreshold)
	if b.BatchSize != nil {
		s.BatchSize = *b.BatchSize
	}

	var err error
	if b.ItemDelay != nil {
		if s.ItemDelay, err = time.ParseDuration(*b.ItemDelay); err != nil {
			return s, fmt.Errorf("invalid item_delay: %w", err)
		}
	}
	if b.BatchDelay != nil {
		if s.BatchDelay, err = time.ParseDuration(*b.BatchDelay); err != nil {
			return s, fmt.Errorf("invalid batch_delay: %w", err)
		}
	}
	return s, nil
}

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(toBody(h.settings.Get()))
}

// UpdateSettings validates the merged settings as a whole; nothing changes
// when any value is out of range.
func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var req settingsBody
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	next, err := req.apply(h.settings.Get())
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.settings.Update(next)
	if err != nil {
		return respondError(c, err, "update settings")
	}
	return c.JSON(toBody(updated))
}

func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	summary, err := h.analytics.Summarize(c.UserContext(), c.QueryInt("top", analytics.DefaultTopGaps))
	if err != nil {
		return respondError(c, err, "load analytics")
	}
	return c.JSON(summary)
}
