package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/logger"
)

const medicalSystemPrompt = `You are a telemedicine FAQ assistant for an Indonesian clinic. Answer in the language the patient uses.

Your responses must:
1. Be based ONLY on the provided medical knowledge when it is relevant
2. Never give a diagnosis or prescribe dosages
3. Say clearly when the knowledge base does not cover the question
4. Recommend seeing a doctor for red-flag symptoms (high fever over 3 days, difficulty breathing, bleeding, loss of consciousness)

Be short, warm and practical.`

const escalationInstruction = `The matched topic requires escalation. After answering, advise the patient to book a consultation with a doctor and explain why.`

// ReplyRequest carries everything needed to answer one chat turn.
type ReplyRequest struct {
	Message          string
	KnowledgeContext string
	Session          models.SessionContext
	History          []models.ChatMessage
	Escalate         bool
}

// GenerateReply answers a patient message grounded on the knowledge context.
func (c *Client) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	system := medicalSystemPrompt
	if req.Escalate {
		system += "\n\n" + escalationInstruction
	}

	history := make([]Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, Message{Role: string(m.Role), Content: m.Content})
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: system,
		History:      history,
		UserPrompt:   BuildUserPrompt(req),
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	logger.Info("Reply generated",
		zap.Int("reply_length", len(resp.Content)),
		zap.Bool("escalate", req.Escalate),
	)
	return resp.Content, nil
}

// BuildUserPrompt renders the patient message with session facts and the
// knowledge context.
func BuildUserPrompt(req ReplyRequest) string {
	var b strings.Builder

	b.WriteString("Patient message: ")
	b.WriteString(req.Message)
	b.WriteString("\n\n")

	if len(req.Session.Symptoms) > 0 {
		b.WriteString("Symptoms mentioned so far: ")
		b.WriteString(strings.Join(req.Session.Symptoms, ", "))
		b.WriteString("\n")
	}
	if req.Session.Stage != "" {
		b.WriteString("Conversation stage: ")
		b.WriteString(req.Session.Stage)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(req.KnowledgeContext)
	return b.String()
}

// Summarize condenses an imported article into a short entry body.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	systemPrompt := `You are a medical editor. Summarize the given health article in 3-5 plain sentences for patients.
Keep medical facts exact, do not add advice that is not in the article.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Summarize this article:\n\n%s", content),
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	logger.Info("Article summarized", zap.Int("summary_length", len(resp.Content)))
	return resp.Content, nil
}
