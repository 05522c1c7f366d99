package gaps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/similarity"
	"github.com/telemed-faq/backend/internal/storage/models"
)

// MergeGroup is one surviving gap and the duplicates folded into it.
type MergeGroup struct {
	SurvivorID  string   `json:"survivor_id"`
	Query       string   `json:"query"`
	AbsorbedIDs []string `json:"absorbed_ids"`
	Frequency   int      `json:"frequency"`
}

type ItemError struct {
	GapID string `json:"gap_id"`
	Error string `json:"error"`
}

type MergeReport struct {
	Scanned int          `json:"scanned"`
	Merged  int          `json:"merged"`
	Groups  []MergeGroup `json:"groups"`
	Errors  []ItemError  `json:"errors"`
}

// MergeDuplicates folds open gaps into the most frequent similar open gap
// and deletes the absorbed rows. Each gap is compared against survivors
// only, so a second run over the result merges nothing. Per-gap failures are
// collected in the report and leave that gap in place for a later run.
func (t *Tracker) MergeDuplicates(ctx context.Context) (*MergeReport, error) {
	open, err := t.store.ListGaps(ctx, models.GapFilter{Statuses: []models.GapStatus{models.GapOpen}})
	if err != nil {
		return nil, fmt.Errorf("failed to list open gaps: %w", err)
	}

	settings := t.settings.Get()
	report := &MergeReport{Scanned: len(open), Groups: []MergeGroup{}, Errors: []ItemError{}}
	processed := make(map[string]bool, len(open))

	for i := range open {
		survivor := open[i]
		if processed[survivor.ID] {
			continue
		}
		processed[survivor.ID] = true

		group := MergeGroup{SurvivorID: survivor.ID, Query: survivor.Query, AbsorbedIDs: []string{}, Frequency: survivor.Frequency}

		for j := i + 1; j < len(open); j++ {
			dup := open[j]
			if processed[dup.ID] {
				continue
			}
			if similarity.Similarity(survivor.Query, dup.Query) < settings.MergeThreshold {
				continue
			}
			processed[dup.ID] = true

			if err := t.absorb(ctx, survivor.ID, dup); err != nil {
				report.Errors = append(report.Errors, ItemError{GapID: dup.ID, Error: err.Error()})
				t.log.Error("Failed to merge duplicate gap",
					zap.String("gap_id", dup.ID),
					zap.String("survivor_id", survivor.ID),
					zap.Error(err),
				)
				continue
			}
			group.AbsorbedIDs = append(group.AbsorbedIDs, dup.ID)
			group.Frequency += dup.Frequency
		}

		if len(group.AbsorbedIDs) == 0 {
			continue
		}

		report.Groups = append(report.Groups, group)
		report.Merged += len(group.AbsorbedIDs)
		metrics.GapsMerged.Add(float64(len(group.AbsorbedIDs)))
		t.log.Info("Duplicate gaps merged",
			zap.String("gap_id", survivor.ID),
			zap.Strings("absorbed", group.AbsorbedIDs),
			zap.Int("frequency", group.Frequency),
		)

		if err := t.sleep(ctx, settings.ItemDelay); err != nil {
			return report, err
		}
	}

	return report, nil
}

// absorb moves dup's frequency onto the survivor, then deletes dup. If the
// delete fails the frequency is moved back so counts are not doubled.
func (t *Tracker) absorb(ctx context.Context, survivorID string, dup models.KnowledgeGap) error {
	now := t.now()
	if err := t.store.IncrementGapFrequency(ctx, survivorID, dup.Frequency, now); err != nil {
		return fmt.Errorf("failed to add frequency to survivor: %w", err)
	}

	if err := t.store.DeleteGap(ctx, dup.ID); err != nil {
		if rbErr := t.store.IncrementGapFrequency(ctx, survivorID, -dup.Frequency, now); rbErr != nil {
			t.log.Error("Failed to roll back survivor frequency",
				zap.String("gap_id", survivorID),
				zap.Int("frequency", dup.Frequency),
				zap.Error(rbErr),
			)
		}
		return fmt.Errorf("failed to delete duplicate: %w", err)
	}
	return nil
}
