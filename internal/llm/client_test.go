package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		APIKey:      "test-key",
		BaseURL:     server.URL + "/v1",
		Temperature: 0.3,
		MaxTokens:   256,
		TimeoutSec:  5,
	})
}

func TestGenerateReply(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Perbanyak minum air."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	})

	reply, err := client.GenerateReply(context.Background(), ReplyRequest{
		Message:          "anak saya demam",
		KnowledgeContext: "Relevant medical knowledge:",
		History: []models.ChatMessage{
			{Role: models.RoleUser, Content: "halo"},
			{Role: models.RoleAssistant, Content: "Halo, ada yang bisa dibantu?"},
		},
		Escalate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Perbanyak minum air.", reply)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "book a consultation")
	assert.Equal(t, "halo", got.Messages[1].Content)
	assert.Contains(t, got.Messages[3].Content, "anak saya demam")
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, client.Available())
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.True(t, isUpstreamFailure(errors.New("connection reset")))
	assert.True(t, isUpstreamFailure(&openai.APIError{HTTPStatusCode: 503}))
	assert.True(t, isUpstreamFailure(&openai.APIError{HTTPStatusCode: 429}))
	assert.False(t, isUpstreamFailure(&openai.APIError{HTTPStatusCode: 401}))
	assert.False(t, isUpstreamFailure(&openai.RequestError{HTTPStatusCode: 400, Err: errors.New("bad")}))
	assert.False(t, isUpstreamFailure(context.Canceled))
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt(ReplyRequest{
		Message:          "masih pusing",
		KnowledgeContext: "No relevant information was found in the knowledge base for this question.",
		Session:          models.SessionContext{Symptoms: []string{"demam", "pusing"}, Stage: "triage"},
	})

	assert.Contains(t, prompt, "Patient message: masih pusing")
	assert.Contains(t, prompt, "Symptoms mentioned so far: demam, pusing")
	assert.Contains(t, prompt, "Conversation stage: triage")
	assert.Contains(t, prompt, "No relevant information")
}
