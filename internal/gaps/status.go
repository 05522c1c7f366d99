package gaps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
)

// Resolution sources, used as resolvedBy when no person is named.
const (
	ResolvedByAdmin      = "admin"
	ResolvedByEvaluation = "auto-evaluation"
	ResolvedByNewEntry   = "new-entry-evaluation"
)

var transitions = map[models.GapStatus][]models.GapStatus{
	models.GapOpen:       {models.GapInProgress, models.GapResolved},
	models.GapInProgress: {models.GapResolved},
	models.GapResolved:   {models.GapOpen},
}

// CanTransition reports whether a gap may move from one status to another.
// An empty from status counts as OPEN.
func CanTransition(from, to models.GapStatus) bool {
	for _, next := range transitions[from.Effective()] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a gap through the curator workflow. assignee applies
// when claiming a gap; actor is recorded when resolving it.
func (t *Tracker) UpdateStatus(ctx context.Context, id string, status models.GapStatus, assignee, actor string) (*models.KnowledgeGap, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	gap, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := gap.Status.Effective()
	if !CanTransition(from, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	now := t.now()
	switch status {
	case models.GapInProgress:
		gap.AssignedTo = assignee
		gap.NeedsContent = true
	case models.GapResolved:
		if actor == "" {
			actor = ResolvedByAdmin
		}
		gap.ResolvedBy = actor
		gap.ResolvedAt = &now
		gap.NeedsContent = false
		if assignee != "" {
			gap.AssignedTo = assignee
		}
	case models.GapOpen:
		gap.ResolvedBy = ""
		gap.ResolvedAt = nil
		gap.NeedsContent = true
		gap.AssignedTo = assignee
	}
	gap.Status = status
	gap.UpdatedAt = now

	if err := t.save(ctx, gap); err != nil {
		return nil, err
	}

	if status == models.GapResolved {
		metrics.GapsResolved.WithLabelValues(ResolvedByAdmin).Inc()
	}
	t.log.Info("Gap status updated",
		zap.String("gap_id", gap.ID),
		zap.String("from", string(from)),
		zap.String("status", string(status)),
		zap.String("assigned_to", gap.AssignedTo),
	)
	return gap, nil
}

// Resolve closes a live gap on behalf of an automatic evaluation. source is
// stored as resolvedBy.
func (t *Tracker) Resolve(ctx context.Context, gap *models.KnowledgeGap, source string) error {
	if !CanTransition(gap.Status, models.GapResolved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, gap.Status.Effective(), models.GapResolved)
	}

	now := t.now()
	gap.Status = models.GapResolved
	gap.ResolvedBy = source
	gap.ResolvedAt = &now
	gap.NeedsContent = false
	gap.UpdatedAt = now

	if err := t.save(ctx, gap); err != nil {
		return err
	}

	metrics.GapsResolved.WithLabelValues(source).Inc()
	t.log.Info("Gap resolved",
		zap.String("gap_id", gap.ID),
		zap.String("query", gap.Query),
		zap.String("resolved_by", source),
	)
	return nil
}

func (t *Tracker) save(ctx context.Context, gap *models.KnowledgeGap) error {
	err := t.store.UpdateGap(ctx, gap)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update gap: %w", err)
	}
	return nil
}
