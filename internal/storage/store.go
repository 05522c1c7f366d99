package storage

import (
	"context"
	"errors"
	"time"

	"github.com/telemed-faq/backend/internal/storage/models"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence surface shared by the sqlite and memory drivers.
// Gap listings are ordered by frequency descending, oldest first on ties.
type Store interface {
	CreateEntry(ctx context.Context, entry *models.KnowledgeEntry) error
	UpdateEntry(ctx context.Context, entry *models.KnowledgeEntry) error
	GetEntry(ctx context.Context, id string) (*models.KnowledgeEntry, error)
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.KnowledgeEntry, error)
	CountEntries(ctx context.Context, filter models.EntryFilter) (int, error)
	ListReviewedEntries(ctx context.Context) ([]models.KnowledgeEntry, error)
	CreateVersion(ctx context.Context, version *models.KnowledgeVersion) error
	ListVersions(ctx context.Context, entryID string) ([]models.KnowledgeVersion, error)

	CreateGap(ctx context.Context, gap *models.KnowledgeGap) error
	GetGap(ctx context.Context, id string) (*models.KnowledgeGap, error)
	FindLiveGapByQuery(ctx context.Context, query string) (*models.KnowledgeGap, error)
	ListGaps(ctx context.Context, filter models.GapFilter) ([]models.KnowledgeGap, error)
	CountGaps(ctx context.Context, filter models.GapFilter) (int, error)
	CountGapsByStatus(ctx context.Context) ([]models.GapStatusCount, error)
	IncrementGapFrequency(ctx context.Context, id string, delta int, at time.Time) error
	UpdateGap(ctx context.Context, gap *models.KnowledgeGap) error
	DeleteGap(ctx context.Context, id string) error

	CreateQueryMatch(ctx context.Context, match *models.QueryMatch) error
	SetMatchFeedback(ctx context.Context, id string, helpful bool) error
	GetMatchStats(ctx context.Context) (*models.MatchStats, error)

	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	SaveSession(ctx context.Context, session *models.ChatSession) error
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)

	Ping(ctx context.Context) error
	Close() error
}
