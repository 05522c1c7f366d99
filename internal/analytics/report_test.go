package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/storage/memory"
	"github.com/telemed-faq/backend/internal/storage/models"
)

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	gapList := []models.KnowledgeGap{
		{ID: "g1", Query: "biaya operasi katarak", Frequency: 7, Status: models.GapOpen},
		{ID: "g2", Query: "jadwal dokter gigi", Frequency: 3},
		{ID: "g3", Query: "vaksin hpv", Frequency: 9, Status: models.GapInProgress},
		{ID: "g4", Query: "obat maag", Frequency: 2, Status: models.GapResolved},
	}
	for i := range gapList {
		gapList[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateGap(ctx, &gapList[i]))
	}

	helpful, unhelpful := true, false
	matchList := []models.QueryMatch{
		{ID: "m1", EntryID: "e1", Confidence: 0.9, WasHelpful: &helpful},
		{ID: "m2", EntryID: "e1", Confidence: 0.5, WasHelpful: &helpful},
		{ID: "m3", EntryID: "e2", Confidence: 0.4, WasHelpful: &unhelpful},
		{ID: "m4", EntryID: "e2", Confidence: 0.2},
	}
	for i := range matchList {
		require.NoError(t, store.CreateQueryMatch(ctx, &matchList[i]))
	}
}

func TestSummarize(t *testing.T) {
	store := memory.New()
	seed(t, store)

	summary, err := NewService(store).Summarize(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, map[models.GapStatus]int{
		models.GapOpen:       2,
		models.GapInProgress: 1,
		models.GapResolved:   1,
	}, summary.GapsByStatus)
	assert.Equal(t, 4, summary.TotalGaps)

	require.Len(t, summary.TopOpenGaps, 2)
	assert.Equal(t, "g1", summary.TopOpenGaps[0].ID)
	assert.Equal(t, "g2", summary.TopOpenGaps[1].ID)

	assert.Equal(t, 4, summary.TotalMatches)
	assert.Equal(t, 3, summary.FeedbackCount)
	assert.InDelta(t, 2.0/3.0, summary.HelpfulRatio, 1e-9)
	assert.InDelta(t, 0.5, summary.AvgConfidence, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	summary, err := NewService(memory.New()).Summarize(context.Background(), 5)
	require.NoError(t, err)

	assert.Zero(t, summary.TotalGaps)
	assert.NotNil(t, summary.TopOpenGaps)
	assert.Zero(t, summary.HelpfulRatio)
}

func TestSummarizeStoreFailure(t *testing.T) {
	store := memory.New()
	store.Fail(errors.New("database is locked"))

	_, err := NewService(store).Summarize(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to count gaps")
}
