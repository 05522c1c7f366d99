package gaps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/storage/memory"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/tuning"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T) (*Tracker, *memory.Store) {
	t.Helper()
	store := memory.New()
	tracker := NewTracker(store, tuning.MustStore(tuning.Defaults()))
	tracker.now = func() time.Time { return fixedNow }
	tracker.sleep = func(context.Context, time.Duration) error { return nil }
	return tracker, store
}

func seedGap(t *testing.T, store *memory.Store, id, query string, freq int, status models.GapStatus) {
	t.Helper()
	require.NoError(t, store.CreateGap(context.Background(), &models.KnowledgeGap{
		ID:           id,
		Query:        query,
		Frequency:    freq,
		Status:       status,
		NeedsContent: status != models.GapResolved,
		CreatedAt:    fixedNow.Add(-time.Hour),
		UpdatedAt:    fixedNow.Add(-time.Hour),
	}))
}

func allGaps(t *testing.T, store *memory.Store) []models.KnowledgeGap {
	t.Helper()
	gaps, err := store.ListGaps(context.Background(), models.GapFilter{})
	require.NoError(t, err)
	return gaps
}

func TestLogGapCreatesNewGap(t *testing.T) {
	tracker, store := newTestTracker(t)

	res := tracker.LogGap(context.Background(), "xyzabc nonsense query")
	require.Equal(t, OutcomeCreated, res.Outcome)

	gaps := allGaps(t, store)
	require.Len(t, gaps, 1)
	assert.Equal(t, res.GapID, gaps[0].ID)
	assert.Equal(t, "xyzabc nonsense query", gaps[0].Query)
	assert.Equal(t, 1, gaps[0].Frequency)
	assert.Equal(t, models.GapOpen, gaps[0].Status)
	assert.True(t, gaps[0].NeedsContent)
}

func TestLogGapIncrementsExactMatch(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()

	first := tracker.LogGap(ctx, "obat sakit perut")
	second := tracker.LogGap(ctx, "  obat sakit perut ")

	assert.Equal(t, OutcomeIncremented, second.Outcome)
	assert.Equal(t, first.GapID, second.GapID)

	gaps := allGaps(t, store)
	require.Len(t, gaps, 1)
	assert.Equal(t, 2, gaps[0].Frequency)
	assert.Equal(t, fixedNow, gaps[0].UpdatedAt)
}

func TestLogGapFoldsSimilarQuery(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()
	seedGap(t, store, "dbd", "apa itu demam berdarah", 1, models.GapOpen)

	res := tracker.LogGap(ctx, "demam berdarah itu apa sih")
	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, "dbd", res.GapID)
	assert.GreaterOrEqual(t, res.Score, 0.75)

	gaps := allGaps(t, store)
	require.Len(t, gaps, 1)
	assert.Equal(t, 2, gaps[0].Frequency)
	assert.Equal(t, "apa itu demam berdarah", gaps[0].Query)
}

func TestLogGapFoldsIntoLegacyNullStatusGap(t *testing.T) {
	tracker, store := newTestTracker(t)
	seedGap(t, store, "legacy", "apa itu demam berdarah", 3, "")

	res := tracker.LogGap(context.Background(), "demam berdarah itu apa sih")
	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, "legacy", res.GapID)
}

func TestLogGapIgnoresResolvedGaps(t *testing.T) {
	tracker, store := newTestTracker(t)
	seedGap(t, store, "old", "apa itu demam berdarah", 4, models.GapResolved)

	res := tracker.LogGap(context.Background(), "apa itu demam berdarah")
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.NotEqual(t, "old", res.GapID)
	assert.Len(t, allGaps(t, store), 2)
}

func TestLogGapNeverFailsTheCaller(t *testing.T) {
	tracker, store := newTestTracker(t)
	store.Fail(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		res := tracker.LogGap(context.Background(), "apa itu demam berdarah")
		assert.Equal(t, OutcomeFailed, res.Outcome)
	})

	assert.Equal(t, OutcomeSkipped, tracker.LogGap(context.Background(), "   ").Outcome)
}

func TestLogGapSkipsQueriesWithoutWords(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()

	for _, q := range []string{"???", "!", "sih dong", "... ya"} {
		assert.Equal(t, OutcomeSkipped, tracker.LogGap(ctx, q).Outcome, q)
	}
	assert.Empty(t, allGaps(t, store))

	_, err := tracker.CreateGap(ctx, "?!")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = tracker.CheckSimilarity(ctx, "...")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestCheckSimilarity(t *testing.T) {
	tracker, store := newTestTracker(t)
	seedGap(t, store, "dbd", "apa itu demam berdarah", 2, models.GapOpen)
	seedGap(t, store, "claimed", "demam berdarah itu apa sih", 1, models.GapInProgress)
	seedGap(t, store, "done", "apa itu demam berdarah?", 1, models.GapResolved)
	seedGap(t, store, "vaksin", "jadwal vaksin anak", 1, models.GapOpen)

	candidates, err := tracker.CheckSimilarity(context.Background(), "Apa itu demam berdarah?")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "dbd", candidates[0].Gap.ID)
	assert.Equal(t, 1.0, candidates[0].Score)
	assert.Equal(t, "claimed", candidates[1].Gap.ID)

	_, err = tracker.CheckSimilarity(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestCreateGap(t *testing.T) {
	tracker, _ := newTestTracker(t)

	gap, err := tracker.CreateGap(context.Background(), "biaya konsultasi dokter spesialis")
	require.NoError(t, err)
	assert.Equal(t, 1, gap.Frequency)
	assert.Equal(t, models.GapOpen, gap.Status)

	_, err = tracker.CreateGap(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.GapStatus
		want     bool
	}{
		{models.GapOpen, models.GapInProgress, true},
		{models.GapOpen, models.GapResolved, true},
		{models.GapInProgress, models.GapResolved, true},
		{models.GapResolved, models.GapOpen, true},
		{"", models.GapInProgress, true},
		{models.GapInProgress, models.GapOpen, false},
		{models.GapResolved, models.GapInProgress, false},
		{models.GapOpen, models.GapOpen, false},
		{models.GapResolved, models.GapResolved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUpdateStatusWorkflow(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()
	seedGap(t, store, "g1", "biaya vaksin dengue", 3, models.GapOpen)

	gap, err := tracker.UpdateStatus(ctx, "g1", models.GapInProgress, "dr.sari", "")
	require.NoError(t, err)
	assert.Equal(t, models.GapInProgress, gap.Status)
	assert.Equal(t, "dr.sari", gap.AssignedTo)

	gap, err = tracker.UpdateStatus(ctx, "g1", models.GapResolved, "", "dr.sari")
	require.NoError(t, err)
	assert.Equal(t, models.GapResolved, gap.Status)
	assert.Equal(t, "dr.sari", gap.ResolvedBy)
	require.NotNil(t, gap.ResolvedAt)
	assert.Equal(t, fixedNow, *gap.ResolvedAt)
	assert.False(t, gap.NeedsContent)

	_, err = tracker.UpdateStatus(ctx, "g1", models.GapInProgress, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	gap, err = tracker.UpdateStatus(ctx, "g1", models.GapOpen, "", "")
	require.NoError(t, err)
	assert.Nil(t, gap.ResolvedAt)
	assert.Empty(t, gap.ResolvedBy)
	assert.True(t, gap.NeedsContent)

	stored, err := store.GetGap(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GapOpen, stored.Status)
	assert.Equal(t, 3, stored.Frequency)
}

func TestUpdateStatusErrors(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()
	seedGap(t, store, "g1", "biaya vaksin dengue", 1, models.GapOpen)

	_, err := tracker.UpdateStatus(ctx, "missing", models.GapResolved, "", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tracker.UpdateStatus(ctx, "g1", "CLOSED", "", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = tracker.UpdateStatus(ctx, "g1", models.GapOpen, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolveDefaultsResolvedBy(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()
	seedGap(t, store, "g1", "biaya vaksin dengue", 1, models.GapOpen)

	gap, err := tracker.Get(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, tracker.Resolve(ctx, gap, ResolvedByEvaluation))

	stored, err := store.GetGap(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GapResolved, stored.Status)
	assert.Equal(t, ResolvedByEvaluation, stored.ResolvedBy)

	assert.ErrorIs(t, tracker.Resolve(ctx, stored, ResolvedByEvaluation), ErrInvalidTransition)
}

func TestMergeDuplicatesConservesFrequency(t *testing.T) {
	tracker, store := newTestTracker(t)
	ctx := context.Background()
	seedGap(t, store, "a", "apa itu demam berdarah", 5, models.GapOpen)
	seedGap(t, store, "b", "jadwal vaksin anak", 4, models.GapOpen)
	seedGap(t, store, "c", "demam berdarah itu apa sih", 3, models.GapOpen)
	seedGap(t, store, "d", "Apa itu demam berdarah?", 2, models.GapOpen)
	seedGap(t, store, "e", "apa itu demam berdarah dengue", 7, models.GapInProgress)

	report, err := tracker.MergeDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 2, report.Merged)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "a", report.Groups[0].SurvivorID)
	assert.ElementsMatch(t, []string{"c", "d"}, report.Groups[0].AbsorbedIDs)
	assert.Equal(t, 10, report.Groups[0].Frequency)

	survivor, err := store.GetGap(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, survivor.Frequency)

	for _, id := range []string{"c", "d"} {
		_, err := store.GetGap(ctx, id)
		assert.Error(t, err, id)
	}

	inProgress, err := store.GetGap(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, 7, inProgress.Frequency)

	again, err := tracker.MergeDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Merged)
	assert.Len(t, allGaps(t, store), 3)
}

func TestMergeDuplicatesStopsOnCancel(t *testing.T) {
	tracker, store := newTestTracker(t)
	tracker.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	seedGap(t, store, "a", "apa itu demam berdarah", 5, models.GapOpen)
	seedGap(t, store, "b", "demam berdarah itu apa sih", 3, models.GapOpen)

	report, err := tracker.MergeDuplicates(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Merged)
}

// failingDeleteStore refuses to delete gaps so the merge has to undo the
// frequency it already added to the survivor.
type failingDeleteStore struct {
	*memory.Store
}

func (s failingDeleteStore) DeleteGap(ctx context.Context, id string) error {
	return errors.New("database is locked")
}

func TestMergeDuplicatesRollsBackOnDeleteFailure(t *testing.T) {
	store := memory.New()
	tracker := NewTracker(failingDeleteStore{store}, tuning.MustStore(tuning.Defaults()))
	tracker.now = func() time.Time { return fixedNow }
	tracker.sleep = func(context.Context, time.Duration) error { return nil }
	seedGap(t, store, "a", "apa itu demam berdarah", 5, models.GapOpen)
	seedGap(t, store, "b", "demam berdarah itu apa sih", 3, models.GapOpen)

	report, err := tracker.MergeDuplicates(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Merged)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "b", report.Errors[0].GapID)

	survivor, err := store.GetGap(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 5, survivor.Frequency)
	assert.Len(t, allGaps(t, store), 2)
}

func TestMergeDuplicatesStoreFailure(t *testing.T) {
	tracker, store := newTestTracker(t)
	store.Fail(errors.New("disk I/O error"))

	_, err := tracker.MergeDuplicates(context.Background())
	assert.Error(t, err)
}
