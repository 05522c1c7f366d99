package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

var _ storage.Store = (*Client)(nil)

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		confidence_level TEXT NOT NULL DEFAULT 'MEDIUM',
		medical_reviewed INTEGER NOT NULL DEFAULT 0,
		requires_escalation INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_category ON knowledge_entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_reviewed ON knowledge_entries(medical_reviewed);

	CREATE TABLE IF NOT EXISTS knowledge_versions (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		changed_by TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES knowledge_entries(id) ON DELETE CASCADE,
		UNIQUE (entry_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_entry ON knowledge_versions(entry_id);

	CREATE TABLE IF NOT EXISTS knowledge_gaps (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 1,
		status TEXT,
		needs_content INTEGER NOT NULL DEFAULT 1,
		assigned_to TEXT,
		resolved_by TEXT,
		resolved_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gaps_status ON knowledge_gaps(status);
	CREATE INDEX IF NOT EXISTS idx_gaps_frequency ON knowledge_gaps(frequency);
	CREATE INDEX IF NOT EXISTS idx_gaps_query ON knowledge_gaps(query);

	CREATE TABLE IF NOT EXISTS query_matches (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		query TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		confidence REAL NOT NULL,
		was_helpful INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_matches_entry ON query_matches(entry_id);
	CREATE INDEX IF NOT EXISTS idx_matches_session ON query_matches(session_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		context TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const entryColumns = `id, title, content, category, keywords, tags, confidence_level, medical_reviewed,
	requires_escalation, version, created_by, created_at, updated_at`

func (c *Client) CreateEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	query := `INSERT INTO knowledge_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		entry.ID,
		entry.Title,
		entry.Content,
		string(entry.Category),
		encodeStrings(entry.Keywords),
		encodeStrings(entry.Tags),
		string(entry.ConfidenceLevel),
		boolToInt(entry.MedicalReviewed),
		boolToInt(entry.RequiresEscalation),
		entry.Version,
		nullString(entry.CreatedBy),
		toMillis(entry.CreatedAt),
		toMillis(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge entry: %w", err)
	}

	logger.Debug("Knowledge entry inserted", zap.String("entry_id", entry.ID))
	return nil
}

func (c *Client) UpdateEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	query := `
		UPDATE knowledge_entries SET
			title = ?, content = ?, category = ?, keywords = ?, tags = ?, confidence_level = ?,
			medical_reviewed = ?, requires_escalation = ?, version = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		entry.Title,
		entry.Content,
		string(entry.Category),
		encodeStrings(entry.Keywords),
		encodeStrings(entry.Tags),
		string(entry.ConfidenceLevel),
		boolToInt(entry.MedicalReviewed),
		boolToInt(entry.RequiresEscalation),
		entry.Version,
		toMillis(entry.UpdatedAt),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge entry: %w", err)
	}

	return expectAffected(res, "knowledge entry")
}

func (c *Client) GetEntry(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM knowledge_entries WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge entry: %w", err)
	}

	return entry, nil
}

func (c *Client) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.KnowledgeEntry, error) {
	where, args := entryWhere(filter)
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries` + where + ` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limitOrAll(filter.Take), filter.Skip)

	return c.queryEntries(ctx, query, args...)
}

func (c *Client) CountEntries(ctx context.Context, filter models.EntryFilter) (int, error) {
	where, args := entryWhere(filter)

	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge entries: %w", err)
	}
	return count, nil
}

func (c *Client) ListReviewedEntries(ctx context.Context) ([]models.KnowledgeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE medical_reviewed = 1 ORDER BY id`
	return c.queryEntries(ctx, query)
}

func (c *Client) queryEntries(ctx context.Context, query string, args ...any) ([]models.KnowledgeEntry, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []models.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

func (c *Client) CreateVersion(ctx context.Context, version *models.KnowledgeVersion) error {
	query := `
		INSERT INTO knowledge_versions (id, entry_id, version, title, content, keywords, changed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		version.ID,
		version.EntryID,
		version.Version,
		version.Title,
		version.Content,
		encodeStrings(version.Keywords),
		nullString(version.ChangedBy),
		toMillis(version.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge version: %w", err)
	}

	return nil
}

func (c *Client) ListVersions(ctx context.Context, entryID string) ([]models.KnowledgeVersion, error) {
	query := `
		SELECT id, entry_id, version, title, content, keywords, changed_by, created_at
		FROM knowledge_versions WHERE entry_id = ? ORDER BY version ASC
	`

	rows, err := c.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge versions: %w", err)
	}
	defer rows.Close()

	var versions []models.KnowledgeVersion
	for rows.Next() {
		var v models.KnowledgeVersion
		var keywords string
		var changedBy sql.NullString
		var createdAt int64

		err := rows.Scan(&v.ID, &v.EntryID, &v.Version, &v.Title, &v.Content, &keywords, &changedBy, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		v.Keywords = decodeStrings(keywords)
		v.ChangedBy = changedBy.String
		v.CreatedAt = fromMillis(createdAt)
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

const gapColumns = `id, query, frequency, status, needs_content, assigned_to, resolved_by, resolved_at, created_at, updated_at`

func (c *Client) CreateGap(ctx context.Context, gap *models.KnowledgeGap) error {
	query := `INSERT INTO knowledge_gaps (` + gapColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		gap.ID,
		gap.Query,
		gap.Frequency,
		nullString(string(gap.Status)),
		boolToInt(gap.NeedsContent),
		nullString(gap.AssignedTo),
		nullString(gap.ResolvedBy),
		nullMillis(gap.ResolvedAt),
		toMillis(gap.CreatedAt),
		toMillis(gap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge gap: %w", err)
	}

	logger.Debug("Knowledge gap inserted", zap.String("gap_id", gap.ID), zap.String("query", gap.Query))
	return nil
}

func (c *Client) GetGap(ctx context.Context, id string) (*models.KnowledgeGap, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+gapColumns+` FROM knowledge_gaps WHERE id = ?`, id)

	gap, err := scanGap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge gap: %w", err)
	}
	return gap, nil
}

func (c *Client) FindLiveGapByQuery(ctx context.Context, query string) (*models.KnowledgeGap, error) {
	stmt := `SELECT ` + gapColumns + ` FROM knowledge_gaps
		WHERE query = ? AND (status IS NULL OR status <> ?)
		ORDER BY frequency DESC, created_at ASC LIMIT 1`

	gap, err := scanGap(c.db.QueryRowContext(ctx, stmt, query, string(models.GapResolved)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find knowledge gap: %w", err)
	}
	return gap, nil
}

func (c *Client) ListGaps(ctx context.Context, filter models.GapFilter) ([]models.KnowledgeGap, error) {
	where, args := gapWhere(filter)
	query := `SELECT ` + gapColumns + ` FROM knowledge_gaps` + where +
		` ORDER BY frequency DESC, created_at ASC, id LIMIT ? OFFSET ?`
	args = append(args, limitOrAll(filter.Take), filter.Skip)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.KnowledgeGap
	for rows.Next() {
		gap, err := scanGap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		gaps = append(gaps, *gap)
	}

	return gaps, rows.Err()
}

func (c *Client) CountGaps(ctx context.Context, filter models.GapFilter) (int, error) {
	where, args := gapWhere(filter)

	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_gaps`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge gaps: %w", err)
	}
	return count, nil
}

func (c *Client) CountGapsByStatus(ctx context.Context) ([]models.GapStatusCount, error) {
	query := `
		SELECT COALESCE(status, ?) AS s, COUNT(*) FROM knowledge_gaps
		GROUP BY s ORDER BY s
	`

	rows, err := c.db.QueryContext(ctx, query, string(models.GapOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate knowledge gaps: %w", err)
	}
	defer rows.Close()

	var counts []models.GapStatusCount
	for rows.Next() {
		var sc models.GapStatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sc.Status = models.GapStatus(status)
		counts = append(counts, sc)
	}

	return counts, rows.Err()
}

func (c *Client) IncrementGapFrequency(ctx context.Context, id string, delta int, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_gaps SET frequency = frequency + ?, updated_at = ? WHERE id = ?`,
		delta, toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment gap frequency: %w", err)
	}
	return expectAffected(res, "knowledge gap")
}

func (c *Client) UpdateGap(ctx context.Context, gap *models.KnowledgeGap) error {
	query := `
		UPDATE knowledge_gaps SET
			status = ?, needs_content = ?, assigned_to = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		nullString(string(gap.Status)),
		boolToInt(gap.NeedsContent),
		nullString(gap.AssignedTo),
		nullString(gap.ResolvedBy),
		nullMillis(gap.ResolvedAt),
		toMillis(gap.UpdatedAt),
		gap.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge gap: %w", err)
	}
	return expectAffected(res, "knowledge gap")
}

func (c *Client) DeleteGap(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_gaps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge gap: %w", err)
	}
	return expectAffected(res, "knowledge gap")
}

func (c *Client) CreateQueryMatch(ctx context.Context, match *models.QueryMatch) error {
	query := `
		INSERT INTO query_matches (id, session_id, query, entry_id, confidence, was_helpful, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var helpful sql.NullInt64
	if match.WasHelpful != nil {
		helpful = sql.NullInt64{Int64: int64(boolToInt(*match.WasHelpful)), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query,
		match.ID,
		nullString(match.SessionID),
		match.Query,
		match.EntryID,
		match.Confidence,
		helpful,
		toMillis(match.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query match: %w", err)
	}

	return nil
}

func (c *Client) SetMatchFeedback(ctx context.Context, id string, helpful bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE query_matches SET was_helpful = ? WHERE id = ?`, boolToInt(helpful), id)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	if err := expectAffected(res, "query match"); err != nil {
		return err
	}

	logger.Info("Feedback stored", zap.String("match_id", id), zap.Bool("helpful", helpful))
	return nil
}

func (c *Client) GetMatchStats(ctx context.Context) (*models.MatchStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN was_helpful = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN was_helpful = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(confidence), 0)
		FROM query_matches
	`

	var stats models.MatchStats
	err := c.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Helpful, &stats.NotHelpful, &stats.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query matches: %w", err)
	}
	return &stats, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var s models.ChatSession
	var userID sql.NullString
	var contextJSON string
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, context, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &userID, &contextJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	if err := json.Unmarshal([]byte(contextJSON), &s.Context); err != nil {
		logger.Warn("Discarding unreadable session context", zap.String("session_id", id), zap.Error(err))
	}
	s.UserID = userID.String
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)

	return &s, nil
}

func (c *Client) SaveSession(ctx context.Context, session *models.ChatSession) error {
	contextJSON, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context = excluded.context,
			updated_at = excluded.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		session.ID,
		nullString(session.UserID),
		string(contextJSON),
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat session: %w", err)
	}
	return nil
}

func (c *Client) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at, rowid AS seq FROM chat_messages
			WHERE session_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var role string
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.Role = models.MessageRole(role)
		m.CreatedAt = fromMillis(createdAt)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.KnowledgeEntry, error) {
	var e models.KnowledgeEntry
	var category, keywords, tags, confidence string
	var reviewed, escalation int
	var createdBy sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.Content,
		&category,
		&keywords,
		&tags,
		&confidence,
		&reviewed,
		&escalation,
		&e.Version,
		&createdBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Category = models.Category(category)
	e.Keywords = decodeStrings(keywords)
	e.Tags = decodeStrings(tags)
	e.ConfidenceLevel = models.ConfidenceLevel(confidence)
	e.MedicalReviewed = reviewed == 1
	e.RequiresEscalation = escalation == 1
	e.CreatedBy = createdBy.String
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)

	return &e, nil
}

func scanGap(row rowScanner) (*models.KnowledgeGap, error) {
	var g models.KnowledgeGap
	var status, assignedTo, resolvedBy sql.NullString
	var needsContent int
	var resolvedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&g.ID,
		&g.Query,
		&g.Frequency,
		&status,
		&needsContent,
		&assignedTo,
		&resolvedBy,
		&resolvedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Status = models.GapStatus(status.String)
	g.NeedsContent = needsContent == 1
	g.AssignedTo = assignedTo.String
	g.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		g.ResolvedAt = &t
	}
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)

	return &g, nil
}

func entryWhere(filter models.EntryFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.ReviewedOnly {
		clauses = append(clauses, "medical_reviewed = 1")
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR content LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}

	return joinWhere(clauses), args
}

func gapWhere(filter models.GapFilter) (string, []any) {
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		includeNull := false
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(s))
			if s == models.GapOpen {
				includeNull = true
			}
		}

		clause := "status IN (" + strings.Join(placeholders, ", ") + ")"
		if includeNull {
			clause = "(" + clause + " OR status IS NULL)"
		}
		clauses = append(clauses, clause)
	}
	if filter.Search != "" {
		clauses = append(clauses, "query LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}

	return joinWhere(clauses), args
}

func joinWhere(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

func limitOrAll(take int) int {
	if take <= 0 {
		return -1
	}
	return take
}

func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(data string) []string {
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
