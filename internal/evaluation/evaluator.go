// Package evaluation re-scores open knowledge gaps against the reviewed
// corpus and resolves the ones it now answers.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/retrieval"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/textproc"
	"github.com/telemed-faq/backend/internal/tuning"
	"github.com/telemed-faq/backend/pkg/logger"
	"github.com/telemed-faq/backend/pkg/retry"
)

// gapSearchLimit is how many ranked entries are considered per gap.
const gapSearchLimit = 5

var ErrEntryNotFound = errors.New("knowledge entry not found")

// Searcher ranks reviewed entries without caching.
type Searcher interface {
	SearchWithOptions(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

type Match struct {
	EntryID string  `json:"entry_id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
}

type GapResult struct {
	GapID      string `json:"gap_id"`
	Query      string `json:"query"`
	Resolved   bool   `json:"resolved"`
	Skipped    bool   `json:"skipped,omitempty"`
	BestMatch  *Match `json:"best_match,omitempty"`
	MatchCount int    `json:"match_count"`
	Error      string `json:"error,omitempty"`
}

type Report struct {
	Evaluated int         `json:"evaluated"`
	Resolved  int         `json:"resolved"`
	Failed    int         `json:"failed"`
	Results   []GapResult `json:"results"`
}

type EntryDetail struct {
	GapID     string  `json:"gap_id"`
	Query     string  `json:"query"`
	Relevance float64 `json:"relevance"`
	Resolved  bool    `json:"resolved"`
	Error     string  `json:"error,omitempty"`
}

type EntryReport struct {
	EntryID   string        `json:"entry_id"`
	Evaluated int           `json:"evaluated"`
	Resolved  int           `json:"resolved"`
	Details   []EntryDetail `json:"details"`
}

type Service struct {
	store    storage.Store
	searcher Searcher
	tracker  *gaps.Tracker
	settings *tuning.Store
	log      *zap.Logger
	sleep    func(context.Context, time.Duration) error
}

func NewService(store storage.Store, searcher Searcher, tracker *gaps.Tracker, settings *tuning.Store) *Service {
	return &Service{
		store:    store,
		searcher: searcher,
		tracker:  tracker,
		settings: settings,
		log:      logger.Named("evaluation"),
		sleep:    retry.Sleep,
	}
}

// EvaluateGap ranks entries for query and resolves the gap when at least one
// scores above the resolution threshold. An empty query means the gap's own.
// Gaps that are already resolved are skipped.
func (s *Service) EvaluateGap(ctx context.Context, gapID, query string) (*GapResult, error) {
	gap, err := s.tracker.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		query = gap.Query
	}

	result := &GapResult{GapID: gap.ID, Query: query}
	if !gap.IsLive() {
		result.Skipped = true
		return result, nil
	}

	settings := s.settings.Get()
	ranked, err := s.searcher.SearchWithOptions(ctx, query, retrieval.Options{
		Limit:  gapSearchLimit,
		Cutoff: settings.RelevanceCutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank entries for gap %s: %w", gap.ID, err)
	}

	for _, r := range ranked {
		if r.Score <= settings.ResolutionThreshold {
			continue
		}
		result.MatchCount++
		if result.BestMatch == nil {
			result.BestMatch = &Match{EntryID: r.Entry.ID, Title: r.Entry.Title, Score: r.Score}
		}
	}

	if result.MatchCount == 0 {
		return result, nil
	}

	if err := s.tracker.Resolve(ctx, gap, gaps.ResolvedByEvaluation); err != nil {
		return nil, err
	}
	result.Resolved = true

	s.log.Info("Gap auto-resolved",
		zap.String("gap_id", gap.ID),
		zap.String("entry_id", result.BestMatch.EntryID),
		zap.Float64("score", result.BestMatch.Score),
	)
	return result, nil
}

// EvaluateAllOpenGaps evaluates every open gap, most frequent first, in
// batches separated by the configured delays. A failing gap is recorded and
// the run moves on. Cancelling ctx returns the partial report.
func (s *Service) EvaluateAllOpenGaps(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("bulk").Observe(time.Since(start).Seconds())
	}()

	open, err := s.store.ListGaps(ctx, models.GapFilter{Statuses: []models.GapStatus{models.GapOpen}})
	if err != nil {
		return nil, fmt.Errorf("failed to list open gaps: %w", err)
	}

	settings := s.settings.Get()
	report := &Report{Results: make([]GapResult, 0, len(open))}

	s.log.Info("Evaluating open gaps",
		zap.Int("gaps", len(open)),
		zap.Int("batch_size", settings.BatchSize),
	)

	for i, gap := range open {
		if i > 0 {
			delay := settings.ItemDelay
			if i%settings.BatchSize == 0 {
				delay = settings.BatchDelay
			}
			if err := s.sleep(ctx, delay); err != nil {
				return report, err
			}
		}

		result, err := s.EvaluateGap(ctx, gap.ID, gap.Query)
		report.Evaluated++
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, GapResult{GapID: gap.ID, Query: gap.Query, Error: err.Error()})
			s.log.Error("Gap evaluation failed", zap.String("gap_id", gap.ID), zap.Error(err))
			continue
		}

		if result.Resolved {
			report.Resolved++
		}
		report.Results = append(report.Results, *result)
	}

	s.log.Info("Open gap evaluation completed",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("resolved", report.Resolved),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}

// EvaluateGapsForNewEntry resolves open gaps whose query tokens are mostly
// covered by a reviewed entry's title, content and keywords. Unreviewed
// entries resolve nothing.
func (s *Service) EvaluateGapsForNewEntry(ctx context.Context, entryID string) (*EntryReport, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("new_entry").Observe(time.Since(start).Seconds())
	}()

	entry, err := s.store.GetEntry(ctx, entryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	report := &EntryReport{EntryID: entry.ID, Details: []EntryDetail{}}
	if !entry.MedicalReviewed {
		return report, nil
	}

	open, err := s.store.ListGaps(ctx, models.GapFilter{Statuses: []models.GapStatus{models.GapOpen}})
	if err != nil {
		return nil, fmt.Errorf("failed to list open gaps: %w", err)
	}

	threshold := s.settings.Get().NewEntryThreshold
	entryTokens := tokenSet(entry)

	for i := range open {
		gap := open[i]
		report.Evaluated++

		relevance := TokenOverlap(gap.Query, entryTokens)
		if relevance == 0 {
			continue
		}

		detail := EntryDetail{GapID: gap.ID, Query: gap.Query, Relevance: relevance}
		if relevance > threshold {
			if err := s.tracker.Resolve(ctx, &gap, gaps.ResolvedByNewEntry); err != nil {
				detail.Error = err.Error()
				s.log.Error("Failed to resolve gap for new entry",
					zap.String("gap_id", gap.ID),
					zap.String("entry_id", entry.ID),
					zap.Error(err),
				)
			} else {
				detail.Resolved = true
				report.Resolved++
			}
		}
		report.Details = append(report.Details, detail)
	}

	s.log.Info("New entry gap evaluation completed",
		zap.String("entry_id", entry.ID),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("resolved", report.Resolved),
	)
	return report, nil
}

// TokenOverlap is the share of query tokens present in entryTokens.
func TokenOverlap(query string, entryTokens map[string]struct{}) float64 {
	queryTokens := textproc.UniqueTokens(query)
	if len(queryTokens) == 0 {
		return 0
	}

	hits := 0
	for _, tok := range queryTokens {
		if _, ok := entryTokens[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func tokenSet(entry *models.KnowledgeEntry) map[string]struct{} {
	text := entry.Title + " " + entry.Content + " " + strings.Join(entry.Keywords, " ")
	set := make(map[string]struct{})
	for _, tok := range textproc.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
