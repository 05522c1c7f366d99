package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/storage/memory"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/tuning"
)

func feverEntry() models.KnowledgeEntry {
	return models.KnowledgeEntry{
		ID:              "fever",
		Title:           "Fever Management",
		Content:         "Minum banyak air putih dan istirahat. Kompres hangat membantu menurunkan suhu tubuh.",
		Category:        models.CategorySymptoms,
		Keywords:        []string{"fever", "demam", "suhu tinggi"},
		ConfidenceLevel: models.ConfidenceHigh,
		MedicalReviewed: true,
	}
}

func TestRankFeverScenario(t *testing.T) {
	results := Rank("saya sakit kepala dan demam", []models.KnowledgeEntry{feverEntry()}, Options{Limit: 3, Cutoff: DefaultCutoff})

	require.Len(t, results, 1)
	assert.Equal(t, "fever", results[0].Entry.ID)
	assert.Equal(t, MatchKeyword, results[0].MatchType)
	assert.InDelta(t, 1.0/3+highConfidenceBoost, results[0].Score, 1e-9)
}

func TestRankNonsenseQueryIsEmpty(t *testing.T) {
	results := Rank("xyzabc nonsense query", []models.KnowledgeEntry{feverEntry()}, Options{Limit: 3, Cutoff: DefaultCutoff})
	assert.Empty(t, results)
}

func TestRankStopwordOnlyQueryIsEmpty(t *testing.T) {
	assert.Empty(t, Rank("apa itu?", []models.KnowledgeEntry{feverEntry()}, Options{Cutoff: DefaultCutoff}))
	assert.Empty(t, Rank("", []models.KnowledgeEntry{feverEntry()}, Options{Cutoff: DefaultCutoff}))
}

func TestRankExcludesUnreviewedEntries(t *testing.T) {
	unreviewed := feverEntry()
	unreviewed.ID = "draft"
	unreviewed.MedicalReviewed = false
	unreviewed.Title = "demam"
	unreviewed.Keywords = []string{"demam"}

	results := Rank("demam", []models.KnowledgeEntry{unreviewed}, Options{Cutoff: 0})
	assert.Empty(t, results)
}

func TestRankHighConfidenceOutranksLow(t *testing.T) {
	high := feverEntry()
	low := feverEntry()
	low.ID = "fever-low"
	low.ConfidenceLevel = models.ConfidenceLow

	queries := []string{"demam tinggi", "fever management", "suhu tubuh", "saya sakit kepala dan demam"}
	for _, q := range queries {
		highScore := Rank(q, []models.KnowledgeEntry{high}, Options{Cutoff: 0})
		lowScore := Rank(q, []models.KnowledgeEntry{low}, Options{Cutoff: 0})

		require.NotEmpty(t, highScore, q)
		if len(lowScore) == 0 {
			continue
		}
		assert.GreaterOrEqual(t, highScore[0].Score, lowScore[0].Score, q)
	}
}

func TestRankMatchTypeAndOrdering(t *testing.T) {
	title := models.KnowledgeEntry{
		ID:              "title",
		Title:           "Jadwal vaksin anak",
		Content:         "Informasi umum.",
		ConfidenceLevel: models.ConfidenceLow,
		MedicalReviewed: true,
	}
	content := models.KnowledgeEntry{
		ID:              "content",
		Title:           "Imunisasi",
		Content:         "Jadwal vaksin anak diatur oleh dokter anak sesuai usia dan riwayat kesehatan.",
		ConfidenceLevel: models.ConfidenceLow,
		MedicalReviewed: true,
	}

	results := Rank("jadwal vaksin anak", []models.KnowledgeEntry{content, title}, Options{Cutoff: DefaultCutoff})
	require.Len(t, results, 2)

	assert.Equal(t, "title", results[0].Entry.ID)
	assert.Equal(t, MatchTitle, results[0].MatchType)
	assert.Equal(t, 1.0, results[0].Score)

	assert.Equal(t, "content", results[1].Entry.ID)
	assert.Equal(t, MatchContent, results[1].MatchType)
}

func TestRankTruncatesAndClampsScore(t *testing.T) {
	entries := make([]models.KnowledgeEntry, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		e := feverEntry()
		e.ID = id
		entries = append(entries, e)
	}

	results := Rank("demam", entries, Options{Limit: 2, Cutoff: DefaultCutoff})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestKeywordScoreIsBounded(t *testing.T) {
	keywords := []string{"demam", "demam berdarah", "demam tinggi", "obat demam"}
	assert.Equal(t, 1.0, keywordScore([]string{"demam"}, keywords))
	assert.Equal(t, 0.5, keywordScore([]string{"demam", "vaksin"}, []string{"Demam"}))
	assert.Equal(t, 0.0, keywordScore([]string{"demam"}, nil))
}

type fakeCache struct {
	stored      map[string][]Result
	invalidated int
}

func (c *fakeCache) GetSearch(ctx context.Context, key string, dest interface{}) (bool, error) {
	r, ok := c.stored[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]Result)) = r
	return true, nil
}

func (c *fakeCache) SetSearch(ctx context.Context, key string, results interface{}) error {
	c.stored[key] = results.([]Result)
	return nil
}

func (c *fakeCache) InvalidateSearch(ctx context.Context) error {
	c.stored = map[string][]Result{}
	c.invalidated++
	return nil
}

func TestServiceSearch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateEntry(ctx, ptr(feverEntry())))

	svc := NewService(store, tuning.MustStore(tuning.Defaults()))

	results := svc.Search(ctx, "saya sakit kepala dan demam", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "fever", results[0].Entry.ID)

	assert.Empty(t, svc.Search(ctx, "xyzabc nonsense query", 3))
}

func TestServiceSearchFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateEntry(ctx, ptr(feverEntry())))
	store.Fail(errors.New("database is locked"))

	svc := NewService(store, tuning.MustStore(tuning.Defaults()))
	results := svc.Search(ctx, "demam", 3)

	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err := svc.SearchWithOptions(ctx, "demam", Options{})
	assert.Error(t, err)
}

func TestServiceSearchUsesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateEntry(ctx, ptr(feverEntry())))

	cache := &fakeCache{stored: map[string][]Result{}}
	svc := NewService(store, tuning.MustStore(tuning.Defaults())).WithCache(cache)

	first := svc.Search(ctx, "demam", 3)
	require.Len(t, first, 1)
	assert.Len(t, cache.stored, 1)

	// A cached result survives a store outage.
	store.Fail(errors.New("down"))
	assert.Equal(t, first, svc.Search(ctx, "Demam!", 3))

	svc.Invalidate(ctx)
	assert.Equal(t, 1, cache.invalidated)
	assert.Empty(t, svc.Search(ctx, "demam", 3))
}

func TestBuildKnowledgeContext(t *testing.T) {
	assert.Equal(t, NoKnowledgeNotice, BuildKnowledgeContext(nil))

	entry := feverEntry()
	entry.RequiresEscalation = true
	out := BuildKnowledgeContext([]Result{{Entry: entry, Score: 0.63, MatchType: MatchKeyword}})

	assert.Contains(t, out, "[1] Fever Management")
	assert.Contains(t, out, "confidence: HIGH")
	assert.Contains(t, out, "relevance: 0.63")
	assert.Contains(t, out, "Kompres hangat")
	assert.Contains(t, out, "referral to a doctor")
}

func ptr[T any](v T) *T {
	return &v
}
