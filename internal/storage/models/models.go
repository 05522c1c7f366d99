package models

import "time"

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

func (c ConfidenceLevel) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

type Category string

const (
	CategorySymptoms    Category = "SYMPTOMS"
	CategoryDiseases    Category = "DISEASES"
	CategoryMedications Category = "MEDICATIONS"
	CategoryPrevention  Category = "PREVENTION"
	CategoryServices    Category = "SERVICES"
	CategoryEmergency   Category = "EMERGENCY"
	CategoryGeneral     Category = "GENERAL"
)

func (c Category) Valid() bool {
	switch c {
	case CategorySymptoms, CategoryDiseases, CategoryMedications, CategoryPrevention,
		CategoryServices, CategoryEmergency, CategoryGeneral:
		return true
	}
	return false
}

// KnowledgeEntry is a curated fact record. Only entries with MedicalReviewed
// set are ever returned by retrieval.
type KnowledgeEntry struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Content            string          `json:"content"`
	Category           Category        `json:"category"`
	Keywords           []string        `json:"keywords"`
	Tags               []string        `json:"tags"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	MedicalReviewed    bool            `json:"medical_reviewed"`
	RequiresEscalation bool            `json:"requires_escalation"`
	Version            int             `json:"version"`
	CreatedBy          string          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// KnowledgeVersion is an append-only content snapshot taken on every edit.
type KnowledgeVersion struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id"`
	Version   int       `json:"version"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	ChangedBy string    `json:"changed_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type GapStatus string

const (
	GapOpen       GapStatus = "OPEN"
	GapInProgress GapStatus = "IN_PROGRESS"
	GapResolved   GapStatus = "RESOLVED"
)

// Effective maps the empty status of older rows to OPEN.
func (s GapStatus) Effective() GapStatus {
	if s == "" {
		return GapOpen
	}
	return s
}

func (s GapStatus) Valid() bool {
	switch s {
	case GapOpen, GapInProgress, GapResolved:
		return true
	}
	return false
}

// KnowledgeGap is a user query no reviewed entry answers. Status may be empty
// for legacy rows; use Status.Effective().
type KnowledgeGap struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	Frequency    int        `json:"frequency"`
	Status       GapStatus  `json:"status"`
	NeedsContent bool       `json:"needs_content"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (g *KnowledgeGap) IsOpen() bool {
	return g.Status.Effective() == GapOpen
}

// IsLive reports whether the gap still awaits content.
func (g *KnowledgeGap) IsLive() bool {
	return g.Status.Effective() != GapResolved
}

// QueryMatch links a chat query to the entry that answered it.
type QueryMatch struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	EntryID    string    `json:"entry_id"`
	Confidence float64   `json:"confidence"`
	WasHelpful *bool     `json:"was_helpful,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionContext is the fixed set of facts the chat flow tracks per session.
type SessionContext struct {
	Symptoms []string `json:"symptoms,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Platform string   `json:"platform,omitempty"`
}

type ChatSession struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Context   SessionContext `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type ChatMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	Category     Category
	ReviewedOnly bool
	Search       string
	Skip         int
	Take         int
}

// GapFilter narrows gap listings. An empty Statuses slice matches every gap.
// Filtering on GapOpen also matches legacy rows with no status.
type GapFilter struct {
	Statuses []GapStatus
	Search   string
	Skip     int
	Take     int
}

type GapStatusCount struct {
	Status GapStatus `json:"status"`
	Count  int       `json:"count"`
}

type MatchStats struct {
	Total         int     `json:"total"`
	Helpful       int     `json:"helpful"`
	NotHelpful    int     `json:"not_helpful"`
	AvgConfidence float64 `json:"avg_confidence"`
}
