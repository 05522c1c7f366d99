package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestEntriesAndVersions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	entry := &models.KnowledgeEntry{
		ID:              "e1",
		Title:           "Demam berdarah",
		Content:         "Demam berdarah disebabkan virus dengue.",
		Category:        models.CategoryDiseases,
		Keywords:        []string{"demam", "dengue"},
		ConfidenceLevel: models.ConfidenceHigh,
		Version:         1,
		CreatedAt:       base,
		UpdatedAt:       base,
	}
	require.NoError(t, c.CreateEntry(ctx, entry))
	require.NoError(t, c.CreateEntry(ctx, &models.KnowledgeEntry{
		ID: "e2", Title: "Biaya konsultasi", Content: "Konsultasi umum gratis.",
		Category: models.CategoryServices, ConfidenceLevel: models.ConfidenceMedium,
		MedicalReviewed: true, Version: 1, CreatedAt: base, UpdatedAt: base.Add(time.Minute),
	}))

	got, err := c.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, entry.Keywords, got.Keywords)
	assert.Empty(t, got.Tags)
	assert.Equal(t, models.ConfidenceHigh, got.ConfidenceLevel)
	assert.True(t, base.Equal(got.CreatedAt))

	_, err = c.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	reviewed, err := c.ListReviewedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, reviewed, 1)
	assert.Equal(t, "e2", reviewed[0].ID)

	listed, err := c.ListEntries(ctx, models.EntryFilter{Category: models.CategoryDiseases})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "e1", listed[0].ID)

	count, err := c.CountEntries(ctx, models.EntryFilter{Search: "konsultasi"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entry.Version = 2
	entry.MedicalReviewed = true
	entry.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, c.UpdateEntry(ctx, entry))
	assert.ErrorIs(t, c.UpdateEntry(ctx, &models.KnowledgeEntry{ID: "missing"}), storage.ErrNotFound)

	for v := 1; v <= 2; v++ {
		require.NoError(t, c.CreateVersion(ctx, &models.KnowledgeVersion{
			ID: "v" + string(rune('0'+v)), EntryID: "e1", Version: v,
			Title: entry.Title, Content: entry.Content, Keywords: entry.Keywords, CreatedAt: base,
		}))
	}
	versions, err := c.ListVersions(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
}

func TestGaps(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	gaps := []*models.KnowledgeGap{
		{ID: "g1", Query: "biaya operasi katarak", Frequency: 2, Status: models.GapOpen, NeedsContent: true, CreatedAt: base, UpdatedAt: base},
		{ID: "g2", Query: "jam buka apotek", Frequency: 5, NeedsContent: true, CreatedAt: base, UpdatedAt: base},
		{ID: "g3", Query: "vaksin rabies", Frequency: 1, Status: models.GapInProgress, NeedsContent: true, CreatedAt: base, UpdatedAt: base},
	}
	for _, g := range gaps {
		require.NoError(t, c.CreateGap(ctx, g))
	}

	open, err := c.ListGaps(ctx, models.GapFilter{Statuses: []models.GapStatus{models.GapOpen}})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "g2", open[0].ID, "legacy rows without status count as open, highest frequency first")
	assert.Equal(t, models.GapOpen, open[0].Status.Effective())

	live, err := c.FindLiveGapByQuery(ctx, "vaksin rabies")
	require.NoError(t, err)
	assert.Equal(t, "g3", live.ID)

	require.NoError(t, c.IncrementGapFrequency(ctx, "g1", 3, base.Add(time.Minute)))
	g1, err := c.GetGap(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 5, g1.Frequency)

	resolvedAt := base.Add(time.Hour)
	g3 := gaps[2]
	g3.Status = models.GapResolved
	g3.NeedsContent = false
	g3.ResolvedBy = "auto"
	g3.ResolvedAt = &resolvedAt
	g3.UpdatedAt = resolvedAt
	require.NoError(t, c.UpdateGap(ctx, g3))

	_, err = c.FindLiveGapByQuery(ctx, "vaksin rabies")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := c.GetGap(ctx, "g3")
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*got.ResolvedAt))
	assert.False(t, got.NeedsContent)

	counts, err := c.CountGapsByStatus(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.GapStatusCount{
		{Status: models.GapOpen, Count: 2},
		{Status: models.GapResolved, Count: 1},
	}, counts)

	total, err := c.CountGaps(ctx, models.GapFilter{Search: "katarak"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.NoError(t, c.DeleteGap(ctx, "g1"))
	assert.ErrorIs(t, c.DeleteGap(ctx, "g1"), storage.ErrNotFound)
}

func TestMatchesAndSessions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateQueryMatch(ctx, &models.QueryMatch{ID: "m1", Query: "demam", EntryID: "e1", Confidence: 0.8, CreatedAt: base}))
	require.NoError(t, c.CreateQueryMatch(ctx, &models.QueryMatch{ID: "m2", Query: "batuk", EntryID: "e2", Confidence: 0.4, CreatedAt: base}))
	require.NoError(t, c.SetMatchFeedback(ctx, "m1", true))
	require.NoError(t, c.SetMatchFeedback(ctx, "m2", false))
	assert.ErrorIs(t, c.SetMatchFeedback(ctx, "missing", true), storage.ErrNotFound)

	stats, err := c.GetMatchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Helpful)
	assert.Equal(t, 1, stats.NotHelpful)
	assert.InDelta(t, 0.6, stats.AvgConfidence, 1e-9)

	_, err = c.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	session := &models.ChatSession{
		ID:        "s1",
		Context:   models.SessionContext{Symptoms: []string{"demam"}, Stage: "inquiry", Platform: "web"},
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, c.SaveSession(ctx, session))

	session.Context.Symptoms = append(session.Context.Symptoms, "batuk")
	session.Context.Stage = "follow_up"
	session.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, c.SaveSession(ctx, session))

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demam", "batuk"}, got.Context.Symptoms)
	assert.Equal(t, "follow_up", got.Context.Stage)

	for i, content := range []string{"halo", "ada yang bisa dibantu?", "saya demam"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		require.NoError(t, c.AppendMessage(ctx, &models.ChatMessage{
			ID: "msg" + string(rune('a'+i)), SessionID: "s1", Role: role, Content: content, CreatedAt: base,
		}))
	}

	recent, err := c.ListMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ada yang bisa dibantu?", recent[0].Content)
	assert.Equal(t, "saya demam", recent[1].Content)

	require.NoError(t, c.Ping(ctx))
}
