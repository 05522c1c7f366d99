// Package chat answers patient messages from the reviewed knowledge base and
// records what it could not answer as knowledge gaps.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/gaps"
	"github.com/telemed-faq/backend/internal/llm"
	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/retrieval"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/logger"
)

const (
	DefaultSearchLimit = retrieval.DefaultLimit
	// historyTurns is how many prior messages are replayed to the model.
	historyTurns = 10

	FallbackReply = "Maaf, layanan asisten sedang mengalami gangguan. Silakan coba lagi beberapa saat lagi, " +
		"atau hubungi dokter kami bila keluhan Anda mendesak."
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrMatchNotFound   = errors.New("query match not found")
)

type Searcher interface {
	Search(ctx context.Context, query string, limit int) []retrieval.Result
}

type Generator interface {
	GenerateReply(ctx context.Context, req llm.ReplyRequest) (string, error)
}

type GapLogger interface {
	LogGap(ctx context.Context, query string) gaps.LogResult
}

// Runner schedules background work off the reply path.
type Runner interface {
	Go(name string, task func(ctx context.Context)) bool
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	Platform  string `json:"platform"`
	Transport string `json:"-"`
}

type Source struct {
	EntryID   string              `json:"entry_id"`
	Title     string              `json:"title"`
	Score     float64             `json:"score"`
	MatchType retrieval.MatchType `json:"match_type"`
}

type ChatResponse struct {
	SessionID      string                `json:"session_id"`
	Reply          string                `json:"reply"`
	MatchID        string                `json:"match_id,omitempty"`
	Sources        []Source              `json:"sources"`
	KnowledgeFound bool                  `json:"knowledge_found"`
	Escalate       bool                  `json:"escalate"`
	Fallback       bool                  `json:"fallback"`
	Context        models.SessionContext `json:"context"`
	LatencyMS      int64                 `json:"latency_ms"`
}

type Engine struct {
	store       storage.Store
	searcher    Searcher
	generator   Generator
	gapLogger   GapLogger
	runner      Runner
	searchLimit int
	log         *zap.Logger
	now         func() time.Time
}

func NewEngine(store storage.Store, searcher Searcher, generator Generator, gapLogger GapLogger, runner Runner, searchLimit int) *Engine {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Engine{
		store:       store,
		searcher:    searcher,
		generator:   generator,
		gapLogger:   gapLogger,
		runner:      runner,
		searchLimit: searchLimit,
		log:         logger.Named("chat"),
		now:         time.Now,
	}
}

// HandleMessage answers one patient message. Knowledge search and the model
// are best effort: a failed model call yields FallbackReply. Gap logging and
// match recording run in the background and never delay the reply.
func (e *Engine) HandleMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := e.now()
	transport := req.Transport
	if transport == "" {
		transport = "http"
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		metrics.ChatTotal.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyMessage
	}

	session, firstTurn, err := e.resolveSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		metrics.ChatTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	history, err := e.store.ListMessages(ctx, session.ID, historyTurns)
	if err != nil {
		e.log.Warn("Failed to load chat history", zap.String("session_id", session.ID), zap.Error(err))
		history = nil
	}

	results := e.searcher.Search(ctx, message, e.searchLimit)
	escalate := len(results) > 0 && results[0].Entry.RequiresEscalation

	session.Context = updateContext(session.Context, message, req.Platform, firstTurn, escalate)
	session.UpdatedAt = e.now()
	if err := e.store.SaveSession(ctx, session); err != nil {
		metrics.ChatTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	e.appendMessage(ctx, session.ID, models.RoleUser, message)

	fallback := false
	reply, err := e.generator.GenerateReply(ctx, llm.ReplyRequest{
		Message:          message,
		KnowledgeContext: retrieval.BuildKnowledgeContext(results),
		Session:          session.Context,
		History:          history,
		Escalate:         escalate,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		e.log.Error("Reply generation failed, using fallback",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		metrics.LLMFailures.Inc()
		reply = FallbackReply
		fallback = true
	}

	e.appendMessage(ctx, session.ID, models.RoleAssistant, reply)

	resp := &ChatResponse{
		SessionID:      session.ID,
		Reply:          reply,
		Sources:        toSources(results),
		KnowledgeFound: len(results) > 0,
		Escalate:       escalate,
		Fallback:       fallback,
		Context:        session.Context,
	}

	if len(results) > 0 {
		resp.MatchID = e.recordMatch(ctx, session.ID, message, results[0])
	} else {
		e.logGap(message)
	}

	elapsed := e.now().Sub(start)
	resp.LatencyMS = elapsed.Milliseconds()

	status := "ok"
	if fallback {
		status = "fallback"
	}
	metrics.ChatTotal.WithLabelValues(status).Inc()
	metrics.ChatDuration.WithLabelValues(transport).Observe(elapsed.Seconds())

	e.log.Info("Chat message handled",
		zap.String("session_id", session.ID),
		zap.Int("results", len(results)),
		zap.Bool("escalate", escalate),
		zap.Bool("fallback", fallback),
		zap.Int64("latency_ms", resp.LatencyMS),
	)
	return resp, nil
}

// RecordFeedback stores whether the answer behind a match helped.
func (e *Engine) RecordFeedback(ctx context.Context, matchID string, helpful bool) error {
	err := e.store.SetMatchFeedback(ctx, matchID, helpful)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	metrics.Feedback.WithLabelValues(strconv.FormatBool(helpful)).Inc()
	return nil
}

// History returns up to limit session messages, newest last. A zero limit
// returns them all.
func (e *Engine) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	messages, err := e.store.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// resolveSession loads the session or starts a new one. An unknown ID starts
// a session under that ID so clients may pick their own.
func (e *Engine) resolveSession(ctx context.Context, id, userID string) (*models.ChatSession, bool, error) {
	if id != "" {
		session, err := e.store.GetSession(ctx, id)
		if err == nil {
			return session, false, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to get session: %w", err)
		}
	} else {
		id = uuid.New().String()
	}

	now := e.now()
	return &models.ChatSession{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

func (e *Engine) appendMessage(ctx context.Context, sessionID string, role models.MessageRole, content string) {
	err := e.store.AppendMessage(ctx, &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: e.now(),
	})
	if err != nil {
		e.log.Warn("Failed to persist chat message",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
	}
}

// recordMatch stores the match before the reply is returned so feedback on
// the returned ID always finds it. A failed write yields an empty ID.
func (e *Engine) recordMatch(ctx context.Context, sessionID, query string, top retrieval.Result) string {
	match := &models.QueryMatch{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Query:      query,
		EntryID:    top.Entry.ID,
		Confidence: top.Score,
		CreatedAt:  e.now(),
	}

	if err := e.store.CreateQueryMatch(ctx, match); err != nil {
		e.log.Warn("Failed to record query match",
			zap.String("entry_id", match.EntryID),
			zap.Error(err),
		)
		return ""
	}
	return match.ID
}

func (e *Engine) logGap(query string) {
	e.runner.Go("log_gap", func(ctx context.Context) {
		e.gapLogger.LogGap(ctx, query)
	})
}

func toSources(results []retrieval.Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			EntryID:   r.Entry.ID,
			Title:     r.Entry.Title,
			Score:     r.Score,
			MatchType: r.MatchType,
		})
	}
	return sources
}
