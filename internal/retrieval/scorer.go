// Package retrieval ranks reviewed knowledge entries against a chat query
// using keyword, title and content overlap plus a confidence boost.
package retrieval

import (
	"sort"
	"strings"

	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/textproc"
)

type MatchType string

const (
	MatchKeyword MatchType = "keyword"
	MatchTitle   MatchType = "title"
	MatchContent MatchType = "content"
)

const (
	DefaultCutoff = 0.1
	DefaultLimit  = 3

	highConfidenceBoost   = 0.3
	mediumConfidenceBoost = 0.1
)

type Result struct {
	Entry     models.KnowledgeEntry `json:"entry"`
	Score     float64               `json:"score"`
	MatchType MatchType             `json:"match_type"`
}

// Options tunes a Rank call. A zero Limit means no truncation.
type Options struct {
	Limit  int
	Cutoff float64
}

type scored struct {
	result Result
	raw    float64
}

// Rank scores candidates against query and returns the ones above
// opts.Cutoff, best first. Unreviewed entries are never returned.
func Rank(query string, candidates []models.KnowledgeEntry, opts Options) []Result {
	queryTokens := textproc.UniqueTokens(query)
	if len(queryTokens) == 0 {
		return []Result{}
	}
	queryWords := wordSet(textproc.Words(query))

	ranked := make([]scored, 0, len(candidates))
	for _, entry := range candidates {
		if !entry.MedicalReviewed {
			continue
		}

		score, matchType := lexicalScore(queryTokens, queryWords, entry)
		if score <= 0 {
			continue
		}
		score += confidenceBoost(entry.ConfidenceLevel)
		if score <= opts.Cutoff {
			continue
		}

		ranked = append(ranked, scored{
			result: Result{Entry: entry, Score: min(score, 1), MatchType: matchType},
			raw:    score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].raw > ranked[j].raw
	})

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}

	results := make([]Result, len(ranked))
	for i, r := range ranked {
		results[i] = r.result
	}
	return results
}

// lexicalScore is the best of the keyword, title and content signals. Ties
// go to the earlier signal in that order.
func lexicalScore(queryTokens []string, queryWords map[string]struct{}, entry models.KnowledgeEntry) (float64, MatchType) {
	best, matchType := keywordScore(queryTokens, entry.Keywords), MatchKeyword

	if s := overlap(queryWords, wordSet(textproc.Words(entry.Title))); s > best {
		best, matchType = s, MatchTitle
	}
	if s := overlap(queryWords, wordSet(textproc.Words(entry.Content))); s > best {
		best, matchType = s, MatchContent
	}
	return best, matchType
}

// keywordScore counts entry keywords that contain any query token, relative
// to the number of query tokens.
func keywordScore(queryTokens []string, keywords []string) float64 {
	hits := 0
	for _, kw := range keywords {
		normalized := textproc.Normalize(kw)
		if normalized == "" {
			continue
		}
		for _, tok := range queryTokens {
			if strings.Contains(normalized, tok) {
				hits++
				break
			}
		}
	}
	return min(float64(hits)/float64(max(len(queryTokens), 1)), 1)
}

// overlap is the Jaccard index of two word sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func confidenceBoost(level models.ConfidenceLevel) float64 {
	switch level {
	case models.ConfidenceHigh:
		return highConfidenceBoost
	case models.ConfidenceMedium:
		return mediumConfidenceBoost
	default:
		return 0
	}
}
