// Package knowledge manages curated entries: authoring, versioning, medical
// review and HTML import. Publishing a reviewed entry refreshes the search
// cache and re-checks open gaps against it in the background.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/evaluation"
	"github.com/telemed-faq/backend/internal/ingestion"
	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/logger"
)

var (
	ErrNotFound     = errors.New("knowledge entry not found")
	ErrInvalidEntry = errors.New("invalid knowledge entry")
)

// Invalidator drops cached search results.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// GapEvaluator re-checks open gaps against a newly published entry.
type GapEvaluator interface {
	EvaluateGapsForNewEntry(ctx context.Context, entryID string) (*evaluation.EntryReport, error)
}

// PageFetcher downloads the HTML of an article URL.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Runner schedules background work.
type Runner interface {
	Go(name string, task func(ctx context.Context)) bool
}

type CreateInput struct {
	Title              string                 `json:"title" validate:"required,max=300"`
	Content            string                 `json:"content" validate:"required"`
	Category           models.Category        `json:"category"`
	Keywords           []string               `json:"keywords" validate:"max=50,dive,max=100"`
	Tags               []string               `json:"tags" validate:"max=50,dive,max=100"`
	ConfidenceLevel    models.ConfidenceLevel `json:"confidence_level"`
	MedicalReviewed    bool                   `json:"medical_reviewed"`
	RequiresEscalation bool                   `json:"requires_escalation"`
	CreatedBy          string                 `json:"created_by"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Title              *string                 `json:"title" validate:"omitempty,min=1,max=300"`
	Content            *string                 `json:"content" validate:"omitempty,min=1"`
	Category           *models.Category        `json:"category"`
	Keywords           []string                `json:"keywords" validate:"max=50,dive,max=100"`
	Tags               []string                `json:"tags" validate:"max=50,dive,max=100"`
	ConfidenceLevel    *models.ConfidenceLevel `json:"confidence_level"`
	RequiresEscalation *bool                   `json:"requires_escalation"`
	ChangedBy          string                  `json:"changed_by"`
}

// ImportInput carries either the article HTML or a URL to fetch it from.
type ImportInput struct {
	SourceURL       string                 `json:"source_url" validate:"omitempty,url"`
	HTML            string                 `json:"html" validate:"required_without=SourceURL"`
	Category        models.Category        `json:"category"`
	ConfidenceLevel models.ConfidenceLevel `json:"confidence_level"`
	CreatedBy       string                 `json:"created_by"`
}

type Service struct {
	store       storage.Store
	processor   *ingestion.Processor
	fetcher     PageFetcher
	invalidator Invalidator
	evaluator   GapEvaluator
	runner      Runner
	validate    *validator.Validate
	log         *zap.Logger
	now         func() time.Time
}

func NewService(store storage.Store, processor *ingestion.Processor, invalidator Invalidator, evaluator GapEvaluator, runner Runner) *Service {
	return &Service{
		store:       store,
		processor:   processor,
		invalidator: invalidator,
		evaluator:   evaluator,
		runner:      runner,
		validate:    validator.New(),
		log:         logger.Named("knowledge"),
		now:         time.Now,
	}
}

// WithFetcher enables importing by source URL alone.
func (s *Service) WithFetcher(f PageFetcher) *Service {
	s.fetcher = f
	return s
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.KnowledgeEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	category, err := categoryOrDefault(in.Category)
	if err != nil {
		return nil, err
	}
	confidence, err := confidenceOrDefault(in.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &models.KnowledgeEntry{
		ID:                 uuid.New().String(),
		Title:              strings.TrimSpace(in.Title),
		Content:            strings.TrimSpace(in.Content),
		Category:           category,
		Keywords:           cleanList(in.Keywords),
		Tags:               cleanList(in.Tags),
		ConfidenceLevel:    confidence,
		MedicalReviewed:    in.MedicalReviewed,
		RequiresEscalation: in.RequiresEscalation,
		Version:            1,
		CreatedBy:          in.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(entry.Keywords) == 0 {
		entry.Keywords = ingestion.ExtractKeywords(entry.Title+". "+entry.Content, ingestion.DefaultMaxKeywords)
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	if err := s.snapshot(ctx, entry, in.CreatedBy); err != nil {
		return nil, err
	}

	s.log.Info("Knowledge entry created",
		zap.String("entry_id", entry.ID),
		zap.String("title", entry.Title),
		zap.Bool("reviewed", entry.MedicalReviewed),
	)

	if entry.MedicalReviewed {
		s.publish(ctx, entry.ID)
	}
	return entry, nil
}

// Update edits an entry and appends a version snapshot. Edits to a reviewed
// entry are published immediately.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.KnowledgeEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		entry.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		entry.Content = strings.TrimSpace(*in.Content)
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, *in.Category)
		}
		entry.Category = *in.Category
	}
	if in.ConfidenceLevel != nil {
		if !in.ConfidenceLevel.Valid() {
			return nil, fmt.Errorf("%w: unknown confidence level %q", ErrInvalidEntry, *in.ConfidenceLevel)
		}
		entry.ConfidenceLevel = *in.ConfidenceLevel
	}
	if in.Keywords != nil {
		entry.Keywords = cleanList(in.Keywords)
	}
	if in.Tags != nil {
		entry.Tags = cleanList(in.Tags)
	}
	if in.RequiresEscalation != nil {
		entry.RequiresEscalation = *in.RequiresEscalation
	}

	entry.Version++
	entry.UpdatedAt = s.now()

	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	if err := s.snapshot(ctx, entry, in.ChangedBy); err != nil {
		return nil, err
	}

	s.log.Info("Knowledge entry updated",
		zap.String("entry_id", entry.ID),
		zap.Int("version", entry.Version),
	)

	if entry.MedicalReviewed {
		s.publish(ctx, entry.ID)
	}
	return entry, nil
}

// Review marks an entry as medically reviewed and publishes it. Reviewing
// an already reviewed entry changes nothing.
func (s *Service) Review(ctx context.Context, id, reviewer string) (*models.KnowledgeEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.MedicalReviewed {
		return entry, nil
	}

	entry.MedicalReviewed = true
	entry.UpdatedAt = s.now()
	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to mark entry reviewed: %w", err)
	}

	s.log.Info("Knowledge entry reviewed",
		zap.String("entry_id", entry.ID),
		zap.String("reviewer", reviewer),
	)
	s.publish(ctx, entry.ID)
	return entry, nil
}

// Import turns an HTML article into an unreviewed draft entry. Without HTML
// the page is downloaded from SourceURL.
func (s *Service) Import(ctx context.Context, in ImportInput) (*models.KnowledgeEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	html := in.HTML
	if strings.TrimSpace(html) == "" {
		if s.fetcher == nil {
			return nil, fmt.Errorf("%w: html is required", ErrInvalidEntry)
		}
		page, err := s.fetcher.Fetch(ctx, in.SourceURL)
		if err != nil {
			if errors.Is(err, ingestion.ErrUnsupportedContent) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
			}
			return nil, fmt.Errorf("failed to fetch source page: %w", err)
		}
		html = page
	}

	article, err := s.processor.ProcessHTML(ctx, in.SourceURL, html)
	if err != nil {
		if errors.Is(err, ingestion.ErrNoContent) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		return nil, err
	}

	var tags []string
	if in.SourceURL != "" {
		tags = []string{"source:" + in.SourceURL}
	}

	entry, err := s.Create(ctx, CreateInput{
		Title:           article.Title,
		Content:         article.Content,
		Category:        in.Category,
		Keywords:        article.Keywords,
		Tags:            tags,
		ConfidenceLevel: in.ConfidenceLevel,
		CreatedBy:       in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	metrics.EntriesImported.Inc()
	return entry, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// List returns one page of entries and the total matching the filter.
func (s *Service) List(ctx context.Context, filter models.EntryFilter) ([]models.KnowledgeEntry, int, error) {
	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}

	countFilter := filter
	countFilter.Skip, countFilter.Take = 0, 0
	total, err := s.store.CountEntries(ctx, countFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return entries, total, nil
}

func (s *Service) Versions(ctx context.Context, id string) ([]models.KnowledgeVersion, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

func (s *Service) snapshot(ctx context.Context, entry *models.KnowledgeEntry, changedBy string) error {
	version := &models.KnowledgeVersion{
		ID:        uuid.New().String(),
		EntryID:   entry.ID,
		Version:   entry.Version,
		Title:     entry.Title,
		Content:   entry.Content,
		Keywords:  append([]string(nil), entry.Keywords...),
		ChangedBy: changedBy,
		CreatedAt: entry.UpdatedAt,
	}
	if err := s.store.CreateVersion(ctx, version); err != nil {
		return fmt.Errorf("failed to record entry version: %w", err)
	}
	return nil
}

// publish refreshes cached search results and schedules new-entry gap
// evaluation. It never blocks on the evaluation.
func (s *Service) publish(ctx context.Context, entryID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	if s.evaluator == nil || s.runner == nil {
		return
	}

	s.runner.Go("new_entry_evaluation", func(ctx context.Context) {
		if _, err := s.evaluator.EvaluateGapsForNewEntry(ctx, entryID); err != nil {
			s.log.Error("New entry gap evaluation failed", zap.String("entry_id", entryID), zap.Error(err))
		}
	})
}

func categoryOrDefault(c models.Category) (models.Category, error) {
	if c == "" {
		return models.CategoryGeneral, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, c)
	}
	return c, nil
}

func confidenceOrDefault(c models.ConfidenceLevel) (models.ConfidenceLevel, error) {
	if c == "" {
		return models.ConfidenceMedium, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown confidence level %q", ErrInvalidEntry, c)
	}
	return c, nil
}

// cleanList trims items and drops blanks and case-insensitive repeats.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
