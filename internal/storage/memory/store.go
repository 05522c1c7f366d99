// Package memory is an in-process Store used by the "memory" storage driver
// and by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/storage/models"
)

type Store struct {
	mu       sync.RWMutex
	entries  map[string]models.KnowledgeEntry
	versions map[string][]models.KnowledgeVersion
	gaps     map[string]models.KnowledgeGap
	matches  map[string]models.QueryMatch
	sessions map[string]models.ChatSession
	messages map[string][]models.ChatMessage

	failWith error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entries:  make(map[string]models.KnowledgeEntry),
		versions: make(map[string][]models.KnowledgeVersion),
		gaps:     make(map[string]models.KnowledgeGap),
		matches:  make(map[string]models.QueryMatch),
		sessions: make(map[string]models.ChatSession),
		messages: make(map[string][]models.ChatMessage),
	}
}

// Fail makes every subsequent operation return err, simulating an
// unavailable datastore. Fail(nil) restores normal behavior.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failWith
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("knowledge entry %s already exists", entry.ID)
	}
	s.entries[entry.ID] = cloneEntry(*entry)
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	existing, ok := s.entries[entry.ID]
	if !ok {
		return fmt.Errorf("knowledge entry: %w", storage.ErrNotFound)
	}

	updated := cloneEntry(*entry)
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	s.entries[entry.ID] = updated
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	entry, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	entry = cloneEntry(entry)
	return &entry, nil
}

func (s *Store) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	entries := s.filterEntries(filter)
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return paginate(entries, filter.Skip, filter.Take), nil
}

func (s *Store) CountEntries(ctx context.Context, filter models.EntryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	return len(s.filterEntries(filter)), nil
}

func (s *Store) ListReviewedEntries(ctx context.Context) ([]models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	entries := s.filterEntries(models.EntryFilter{ReviewedOnly: true})
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *Store) filterEntries(filter models.EntryFilter) []models.KnowledgeEntry {
	search := strings.ToLower(filter.Search)

	var out []models.KnowledgeEntry
	for _, e := range s.entries {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.ReviewedOnly && !e.MedicalReviewed {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Title), search) &&
			!strings.Contains(strings.ToLower(e.Content), search) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out
}

func (s *Store) CreateVersion(ctx context.Context, version *models.KnowledgeVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	for _, v := range s.versions[version.EntryID] {
		if v.Version == version.Version {
			return fmt.Errorf("version %d of entry %s already exists", version.Version, version.EntryID)
		}
	}

	v := *version
	v.Keywords = append([]string(nil), version.Keywords...)
	s.versions[version.EntryID] = append(s.versions[version.EntryID], v)
	return nil
}

func (s *Store) ListVersions(ctx context.Context, entryID string) ([]models.KnowledgeVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	versions := append([]models.KnowledgeVersion(nil), s.versions[entryID]...)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

func (s *Store) CreateGap(ctx context.Context, gap *models.KnowledgeGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.gaps[gap.ID]; ok {
		return fmt.Errorf("knowledge gap %s already exists", gap.ID)
	}
	s.gaps[gap.ID] = *gap
	return nil
}

func (s *Store) GetGap(ctx context.Context, id string) (*models.KnowledgeGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	gap, ok := s.gaps[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &gap, nil
}

func (s *Store) FindLiveGapByQuery(ctx context.Context, query string) (*models.KnowledgeGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	var matches []models.KnowledgeGap
	for _, g := range s.gaps {
		if g.Query == query && g.IsLive() {
			matches = append(matches, g)
		}
	}
	if len(matches) == 0 {
		return nil, storage.ErrNotFound
	}

	sortGaps(matches)
	return &matches[0], nil
}

func (s *Store) ListGaps(ctx context.Context, filter models.GapFilter) ([]models.KnowledgeGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	gaps := s.filterGaps(filter)
	sortGaps(gaps)
	return paginate(gaps, filter.Skip, filter.Take), nil
}

func (s *Store) CountGaps(ctx context.Context, filter models.GapFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	return len(s.filterGaps(filter)), nil
}

func (s *Store) CountGapsByStatus(ctx context.Context) ([]models.GapStatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	counts := make(map[models.GapStatus]int)
	for _, g := range s.gaps {
		counts[g.Status.Effective()]++
	}

	out := make([]models.GapStatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.GapStatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *Store) filterGaps(filter models.GapFilter) []models.KnowledgeGap {
	search := strings.ToLower(filter.Search)

	var out []models.KnowledgeGap
	for _, g := range s.gaps {
		if len(filter.Statuses) > 0 && !statusIn(g.Status, filter.Statuses) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(g.Query), search) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func statusIn(status models.GapStatus, statuses []models.GapStatus) bool {
	for _, s := range statuses {
		if status == s || (status == "" && s == models.GapOpen) {
			return true
		}
	}
	return false
}

func (s *Store) IncrementGapFrequency(ctx context.Context, id string, delta int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	gap, ok := s.gaps[id]
	if !ok {
		return fmt.Errorf("knowledge gap: %w", storage.ErrNotFound)
	}
	gap.Frequency += delta
	gap.UpdatedAt = at
	s.gaps[id] = gap
	return nil
}

func (s *Store) UpdateGap(ctx context.Context, gap *models.KnowledgeGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	existing, ok := s.gaps[gap.ID]
	if !ok {
		return fmt.Errorf("knowledge gap: %w", storage.ErrNotFound)
	}

	existing.Status = gap.Status
	existing.NeedsContent = gap.NeedsContent
	existing.AssignedTo = gap.AssignedTo
	existing.ResolvedBy = gap.ResolvedBy
	existing.ResolvedAt = gap.ResolvedAt
	existing.UpdatedAt = gap.UpdatedAt
	s.gaps[gap.ID] = existing
	return nil
}

func (s *Store) DeleteGap(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.gaps[id]; !ok {
		return fmt.Errorf("knowledge gap: %w", storage.ErrNotFound)
	}
	delete(s.gaps, id)
	return nil
}

func (s *Store) CreateQueryMatch(ctx context.Context, match *models.QueryMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	s.matches[match.ID] = *match
	return nil
}

func (s *Store) SetMatchFeedback(ctx context.Context, id string, helpful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	match, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("query match: %w", storage.ErrNotFound)
	}
	match.WasHelpful = &helpful
	s.matches[id] = match
	return nil
}

func (s *Store) GetMatchStats(ctx context.Context) (*models.MatchStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	var stats models.MatchStats
	var total float64
	for _, m := range s.matches {
		stats.Total++
		total += m.Confidence
		if m.WasHelpful != nil {
			if *m.WasHelpful {
				stats.Helpful++
			} else {
				stats.NotHelpful++
			}
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = total / float64(stats.Total)
	}
	return &stats, nil
}

// Matches returns a snapshot of recorded query matches.
func (s *Store) Matches() []models.QueryMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.QueryMatch, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	session.Context.Symptoms = append([]string(nil), session.Context.Symptoms...)
	return &session, nil
}

func (s *Store) SaveSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	saved := *session
	if existing, ok := s.sessions[session.ID]; ok {
		saved.CreatedAt = existing.CreatedAt
		saved.UserID = existing.UserID
	}
	saved.Context.Symptoms = append([]string(nil), session.Context.Symptoms...)
	s.sessions[session.ID] = saved
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("chat session: %w", storage.ErrNotFound)
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	messages := s.messages[sessionID]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return append([]models.ChatMessage(nil), messages...), nil
}

func sortGaps(gaps []models.KnowledgeGap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Frequency != gaps[j].Frequency {
			return gaps[i].Frequency > gaps[j].Frequency
		}
		if !gaps[i].CreatedAt.Equal(gaps[j].CreatedAt) {
			return gaps[i].CreatedAt.Before(gaps[j].CreatedAt)
		}
		return gaps[i].ID < gaps[j].ID
	})
}

func paginate[T any](items []T, skip, take int) []T {
	if skip >= len(items) {
		return nil
	}
	if skip > 0 {
		items = items[skip:]
	}
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}

func cloneEntry(e models.KnowledgeEntry) models.KnowledgeEntry {
	e.Keywords = append([]string(nil), e.Keywords...)
	e.Tags = append([]string(nil), e.Tags...)
	return e
}
