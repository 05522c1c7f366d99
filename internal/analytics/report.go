// Package analytics summarizes how well the knowledge base answers patients.
package analytics

import (
	"context"
	"fmt"

	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
)

const DefaultTopGaps = 10

type Summary struct {
	GapsByStatus  map[models.GapStatus]int `json:"gaps_by_status"`
	TotalGaps     int                      `json:"total_gaps"`
	TopOpenGaps   []models.KnowledgeGap    `json:"top_open_gaps"`
	TotalMatches  int                      `json:"total_matches"`
	HelpfulRatio  float64                  `json:"helpful_ratio"`
	AvgConfidence float64                  `json:"avg_confidence"`
	FeedbackCount int                      `json:"feedback_count"`
}

type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Summarize reports gap counts per status (legacy empty status counted as
// OPEN), the most frequent open gaps, and answer feedback. The helpful
// ratio is over matches that received feedback.
func (s *Service) Summarize(ctx context.Context, topGaps int) (*Summary, error) {
	if topGaps <= 0 {
		topGaps = DefaultTopGaps
	}

	counts, err := s.store.CountGapsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count gaps: %w", err)
	}

	summary := &Summary{
		GapsByStatus: map[models.GapStatus]int{
			models.GapOpen:       0,
			models.GapInProgress: 0,
			models.GapResolved:   0,
		},
	}
	for _, c := range counts {
		summary.GapsByStatus[c.Status.Effective()] += c.Count
		summary.TotalGaps += c.Count
	}

	top, err := s.store.ListGaps(ctx, models.GapFilter{
		Statuses: []models.GapStatus{models.GapOpen},
		Take:     topGaps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list open gaps: %w", err)
	}
	if top == nil {
		top = []models.KnowledgeGap{}
	}
	summary.TopOpenGaps = top

	stats, err := s.store.GetMatchStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get match stats: %w", err)
	}
	summary.TotalMatches = stats.Total
	summary.AvgConfidence = stats.AvgConfidence
	summary.FeedbackCount = stats.Helpful + stats.NotHelpful
	if summary.FeedbackCount > 0 {
		summary.HelpfulRatio = float64(stats.Helpful) / float64(summary.FeedbackCount)
	}

	return summary, nil
}
