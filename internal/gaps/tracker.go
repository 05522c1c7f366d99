// Package gaps records user queries the knowledge base cannot answer and
// keeps near-duplicate queries folded into a single gap.
package gaps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/similarity"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/textproc"
	"github.com/telemed-faq/backend/internal/tuning"
	"github.com/telemed-faq/backend/pkg/logger"
	"github.com/telemed-faq/backend/pkg/retry"
)

var (
	ErrNotFound          = errors.New("knowledge gap not found")
	ErrInvalidTransition = errors.New("invalid gap status transition")
	ErrInvalidStatus     = errors.New("unknown gap status")
	ErrEmptyQuery        = errors.New("gap query is empty")
)

type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeIncremented Outcome = "incremented"
	OutcomeMerged      Outcome = "merged"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// LogResult describes what LogGap did with a query.
type LogResult struct {
	Outcome Outcome
	GapID   string
	Score   float64
}

// Candidate is an existing gap that resembles a query.
type Candidate struct {
	Gap   models.KnowledgeGap `json:"gap"`
	Score float64             `json:"score"`
}

type Tracker struct {
	store    storage.Store
	settings *tuning.Store
	log      *zap.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewTracker(store storage.Store, settings *tuning.Store) *Tracker {
	return &Tracker{
		store:    store,
		settings: settings,
		log:      logger.Named("gaps"),
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

// LogGap records an unanswered query. A live gap with the same text, or an
// open gap similar enough to it, absorbs the query; otherwise a new gap is
// created. Failures are logged and reported in the result, never returned.
func (t *Tracker) LogGap(ctx context.Context, query string) LogResult {
	query = strings.TrimSpace(query)
	if textproc.Normalize(query) == "" {
		return LogResult{Outcome: OutcomeSkipped}
	}

	now := t.now()

	existing, err := t.store.FindLiveGapByQuery(ctx, query)
	switch {
	case err == nil:
		if err := t.store.IncrementGapFrequency(ctx, existing.ID, 1, now); err != nil {
			return t.failed("Failed to increment gap frequency", query, err)
		}
		metrics.GapsLogged.WithLabelValues(string(OutcomeIncremented)).Inc()
		t.log.Debug("Gap frequency incremented",
			zap.String("gap_id", existing.ID),
			zap.Int("frequency", existing.Frequency+1),
		)
		return LogResult{Outcome: OutcomeIncremented, GapID: existing.ID, Score: 1}
	case !errors.Is(err, storage.ErrNotFound):
		return t.failed("Failed to look up gap", query, err)
	}

	open, err := t.store.ListGaps(ctx, models.GapFilter{Statuses: []models.GapStatus{models.GapOpen}})
	if err != nil {
		return t.failed("Failed to list open gaps", query, err)
	}

	if match, ok := t.bestMatch(query, open, t.settings.Get().DuplicateThreshold); ok {
		if err := t.store.IncrementGapFrequency(ctx, match.Gap.ID, 1, now); err != nil {
			return t.failed("Failed to fold query into similar gap", query, err)
		}
		metrics.GapsLogged.WithLabelValues(string(OutcomeMerged)).Inc()
		t.log.Info("Query folded into similar gap",
			zap.String("gap_id", match.Gap.ID),
			zap.String("query", query),
			zap.String("gap_query", match.Gap.Query),
			zap.Float64("score", match.Score),
		)
		return LogResult{Outcome: OutcomeMerged, GapID: match.Gap.ID, Score: match.Score}
	}

	gap := newGap(query, now)
	if err := t.store.CreateGap(ctx, gap); err != nil {
		return t.failed("Failed to create gap", query, err)
	}

	metrics.GapsLogged.WithLabelValues(string(OutcomeCreated)).Inc()
	t.log.Info("Knowledge gap created", zap.String("gap_id", gap.ID), zap.String("query", query))
	return LogResult{Outcome: OutcomeCreated, GapID: gap.ID}
}

func (t *Tracker) failed(msg, query string, err error) LogResult {
	metrics.GapsLogged.WithLabelValues(string(OutcomeFailed)).Inc()
	t.log.Error(msg, zap.String("query", query), zap.Error(err))
	return LogResult{Outcome: OutcomeFailed}
}

// CheckSimilarity lists live gaps resembling query, most similar first, so a
// curator can spot duplicates before creating a gap by hand.
func (t *Tracker) CheckSimilarity(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if textproc.Normalize(query) == "" {
		return nil, ErrEmptyQuery
	}

	live, err := t.store.ListGaps(ctx, models.GapFilter{
		Statuses: []models.GapStatus{models.GapOpen, models.GapInProgress},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list live gaps: %w", err)
	}

	return t.similar(query, live, t.settings.Get().DuplicateThreshold), nil
}

// CreateGap adds a gap on behalf of a curator.
func (t *Tracker) CreateGap(ctx context.Context, query string) (*models.KnowledgeGap, error) {
	query = strings.TrimSpace(query)
	if textproc.Normalize(query) == "" {
		return nil, ErrEmptyQuery
	}

	gap := newGap(query, t.now())
	if err := t.store.CreateGap(ctx, gap); err != nil {
		return nil, fmt.Errorf("failed to create gap: %w", err)
	}

	metrics.GapsLogged.WithLabelValues(string(OutcomeCreated)).Inc()
	t.log.Info("Knowledge gap created manually", zap.String("gap_id", gap.ID), zap.String("query", query))
	return gap, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*models.KnowledgeGap, error) {
	gap, err := t.store.GetGap(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gap: %w", err)
	}
	return gap, nil
}

// List returns one page of gaps and the total matching the filter.
func (t *Tracker) List(ctx context.Context, filter models.GapFilter) ([]models.KnowledgeGap, int, error) {
	gaps, err := t.store.ListGaps(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list gaps: %w", err)
	}

	countFilter := filter
	countFilter.Skip, countFilter.Take = 0, 0
	total, err := t.store.CountGaps(ctx, countFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count gaps: %w", err)
	}
	return gaps, total, nil
}

func (t *Tracker) bestMatch(query string, gaps []models.KnowledgeGap, threshold float64) (Candidate, bool) {
	matches := t.similar(query, gaps, threshold)
	if len(matches) == 0 {
		return Candidate{}, false
	}
	return matches[0], true
}

func (t *Tracker) similar(query string, gaps []models.KnowledgeGap, threshold float64) []Candidate {
	queries := make([]string, len(gaps))
	for i, g := range gaps {
		queries[i] = g.Query
	}

	matches := similarity.FindSimilar(query, queries, threshold)
	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{Gap: gaps[m.Index], Score: m.Score}
	}
	return candidates
}

func newGap(query string, now time.Time) *models.KnowledgeGap {
	return &models.KnowledgeGap{
		ID:           uuid.New().String(),
		Query:        query,
		Frequency:    1,
		Status:       models.GapOpen,
		NeedsContent: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
