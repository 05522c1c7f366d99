package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/llm"
	"github.com/telemed-faq/backend/internal/retrieval"
	"github.com/telemed-faq/backend/internal/storage/memory"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/tuning"
)

type fakeGenerator struct {
	reply    string
	err      error
	requests []llm.ReplyRequest
}

func (g *fakeGenerator) GenerateReply(ctx context.Context, req llm.ReplyRequest) (string, error) {
	g.requests = append(g.requests, req)
	return g.reply, g.err
}

// inlineRunner runs tasks synchronously, or drops them when saturated is set.
type inlineRunner struct {
	names     []string
	saturated bool
}

func (r *inlineRunner) Go(name string, task func(ctx context.Context)) bool {
	r.names = append(r.names, name)
	if r.saturated {
		return false
	}
	task(context.Background())
	return true
}

type fixture struct {
	engine    *Engine
	store     *memory.Store
	generator *fakeGenerator
	runner    *inlineRunner
	tracker   *gaps.Tracker
}

func newFixture(t *testing.T, entries ...models.KnowledgeEntry) *fixture {
	t.Helper()

	store := memory.New()
	for i := range entries {
		require.NoError(t, store.CreateEntry(context.Background(), &entries[i]))
	}

	settings := tuning.MustStore(tuning.Defaults())
	f := &fixture{
		store:     store,
		generator: &fakeGenerator{reply: "Demam pada anak umumnya karena infeksi virus."},
		runner:    &inlineRunner{},
		tracker:   gaps.NewTracker(store, settings),
	}
	f.engine = NewEngine(store, retrieval.NewService(store, settings), f.generator, f.tracker, f.runner, 0)
	return f
}

func feverEntry() models.KnowledgeEntry {
	return models.KnowledgeEntry{
		ID:              "entry-fever",
		Title:           "Demam pada anak",
		Content:         "Demam pada anak biasanya disebabkan infeksi virus dan akan turun dalam 3 hari.",
		Category:        models.CategorySymptoms,
		Keywords:        []string{"demam", "anak"},
		ConfidenceLevel: models.ConfidenceHigh,
		MedicalReviewed: true,
	}
}

func chestPainEntry() models.KnowledgeEntry {
	return models.KnowledgeEntry{
		ID:                 "entry-chest",
		Title:              "Nyeri dada",
		Content:            "Nyeri dada yang menjalar ke lengan bisa menandakan serangan jantung.",
		Category:           models.CategoryEmergency,
		Keywords:           []string{"nyeri", "dada", "jantung"},
		ConfidenceLevel:    models.ConfidenceHigh,
		MedicalReviewed:    true,
		RequiresEscalation: true,
	}
}

func TestHandleMessageWithKnowledge(t *testing.T) {
	f := newFixture(t, feverEntry())
	ctx := context.Background()

	resp, err := f.engine.HandleMessage(ctx, ChatRequest{Message: "Anak saya demam, kenapa ya?", Platform: "web"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, f.generator.reply, resp.Reply)
	assert.True(t, resp.KnowledgeFound)
	assert.False(t, resp.Escalate)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "entry-fever", resp.Sources[0].EntryID)
	assert.Equal(t, []string{"demam"}, resp.Context.Symptoms)
	assert.Equal(t, StageInquiry, resp.Context.Stage)
	assert.Equal(t, "web", resp.Context.Platform)

	require.Len(t, f.generator.requests, 1)
	assert.Contains(t, f.generator.requests[0].KnowledgeContext, "Demam pada anak")

	matches := f.store.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, resp.MatchID, matches[0].ID)
	assert.Equal(t, "entry-fever", matches[0].EntryID)

	history, err := f.engine.History(ctx, resp.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	gapList, total, err := f.tracker.List(ctx, models.GapFilter{})
	require.NoError(t, err)
	assert.Empty(t, gapList)
	assert.Zero(t, total)
}

func TestHandleMessageLogsGapWithoutKnowledge(t *testing.T) {
	f := newFixture(t, feverEntry())
	ctx := context.Background()

	resp, err := f.engine.HandleMessage(ctx, ChatRequest{Message: "Berapa biaya operasi katarak?"})
	require.NoError(t, err)

	assert.False(t, resp.KnowledgeFound)
	assert.Empty(t, resp.MatchID)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, retrieval.NoKnowledgeNotice, f.generator.requests[0].KnowledgeContext)
	assert.Equal(t, []string{"log_gap"}, f.runner.names)

	gapList, _, err := f.tracker.List(ctx, models.GapFilter{})
	require.NoError(t, err)
	require.Len(t, gapList, 1)
	assert.Equal(t, "Berapa biaya operasi katarak?", gapList[0].Query)
}

func TestHandleMessageEscalates(t *testing.T) {
	f := newFixture(t, chestPainEntry())
	ctx := context.Background()

	resp, err := f.engine.HandleMessage(ctx, ChatRequest{Message: "Nyeri dada sampai ke lengan kiri"})
	require.NoError(t, err)

	assert.True(t, resp.Escalate)
	assert.Equal(t, StageEscalated, resp.Context.Stage)
	assert.True(t, f.generator.requests[0].Escalate)

	// escalation sticks for the rest of the session
	resp, err = f.engine.HandleMessage(ctx, ChatRequest{SessionID: resp.SessionID, Message: "Berapa biaya operasi katarak?"})
	require.NoError(t, err)
	assert.False(t, resp.Escalate)
	assert.Equal(t, StageEscalated, resp.Context.Stage)
}

func TestHandleMessageFallback(t *testing.T) {
	f := newFixture(t, feverEntry())
	f.generator.err = errors.New("circuit breaker is open")

	resp, err := f.engine.HandleMessage(context.Background(), ChatRequest{Message: "demam anak"})
	require.NoError(t, err)

	assert.True(t, resp.Fallback)
	assert.Equal(t, FallbackReply, resp.Reply)
	assert.True(t, resp.KnowledgeFound)
}

func TestHandleMessageKeepsSessionContext(t *testing.T) {
	f := newFixture(t, feverEntry())
	ctx := context.Background()

	first, err := f.engine.HandleMessage(ctx, ChatRequest{SessionID: "sess-1", Message: "Anak saya demam"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", first.SessionID)

	second, err := f.engine.HandleMessage(ctx, ChatRequest{SessionID: "sess-1", Message: "Sekarang juga batuk dan demam"})
	require.NoError(t, err)

	assert.Equal(t, []string{"demam", "batuk"}, second.Context.Symptoms)
	assert.Equal(t, StageFollowUp, second.Context.Stage)

	require.Len(t, f.generator.requests, 2)
	assert.Len(t, f.generator.requests[1].History, 2)
}

func TestHandleMessageRejectsEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.HandleMessage(context.Background(), ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.generator.requests)
}

func TestHandleMessageStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(errors.New("database is locked"))

	_, err := f.engine.HandleMessage(context.Background(), ChatRequest{SessionID: "sess-1", Message: "demam"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get session")
}

func TestRecordFeedback(t *testing.T) {
	f := newFixture(t, feverEntry())
	ctx := context.Background()

	resp, err := f.engine.HandleMessage(ctx, ChatRequest{Message: "demam anak"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.MatchID)

	require.NoError(t, f.engine.RecordFeedback(ctx, resp.MatchID, true))

	matches := f.store.Matches()
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].WasHelpful)
	assert.True(t, *matches[0].WasHelpful)

	assert.ErrorIs(t, f.engine.RecordFeedback(ctx, "missing", false), ErrMatchNotFound)
}

func TestMatchStoredWhenPoolSaturated(t *testing.T) {
	f := newFixture(t, feverEntry())
	f.runner.saturated = true
	ctx := context.Background()

	resp, err := f.engine.HandleMessage(ctx, ChatRequest{Message: "demam anak"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.MatchID)
	assert.Empty(t, f.runner.names)

	matches := f.store.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, resp.MatchID, matches[0].ID)
	assert.Equal(t, resp.SessionID, matches[0].SessionID)

	require.NoError(t, f.engine.RecordFeedback(ctx, resp.MatchID, false))
}

func TestHistoryUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.History(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExtractSymptoms(t *testing.T) {
	tests := []struct {
		message  string
		expected []string
	}{
		{"Anak saya demam dan batuk", []string{"demam", "batuk"}},
		{"Sakit kepala, pusing, lalu mual", []string{"sakit kepala", "mual"}},
		{"Sesak napas sejak pagi", []string{"sesak napas"}},
		{"Jadwal dokter gigi hari apa?", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractSymptoms(tt.message))
		})
	}
}
