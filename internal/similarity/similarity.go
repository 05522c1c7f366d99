// Package similarity scores how likely two free-text queries ask the same
// thing. It is lexical and deterministic: token-set overlap, question shape,
// a small medical synonym table and edit distance for short inputs.
//
// Scores gate the destructive duplicate merge, so every component is
// symmetric and bounded to [0,1].
package similarity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/telemed-faq/backend/internal/textproc"
)

const (
	lexicalWeight    = 0.5
	structuralWeight = 0.2
	semanticWeight   = 0.3

	// DefaultEquivalenceThreshold is the score at which two queries are
	// treated as the same question.
	DefaultEquivalenceThreshold = 0.8

	minTokensForSetComparison = 2
)

// Match is a candidate that scored at or above a threshold.
type Match struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Similarity returns a score in [0,1]; 1 means the normalized queries are
// identical. Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}

	normA := textproc.Normalize(a)
	normB := textproc.Normalize(b)
	if normA == normB {
		return 1.0
	}

	tokensA := textproc.UniqueTokens(a)
	tokensB := textproc.UniqueTokens(b)
	if len(tokensA) < minTokensForSetComparison || len(tokensB) < minTokensForSetComparison {
		return editSimilarity(normA, normB)
	}

	score := lexicalWeight*jaccard(tokensA, tokensB) +
		structuralWeight*structuralSimilarity(a, b, normA, normB) +
		semanticWeight*semanticSimilarity(tokensA, tokensB)

	return clamp(score)
}

// FindSimilar scores target against every candidate and returns those at or
// above threshold, best first. Ties keep candidate order.
func FindSimilar(target string, candidates []string, threshold float64) []Match {
	var matches []Match
	for i, c := range candidates {
		score := Similarity(target, c)
		if score >= threshold {
			matches = append(matches, Match{Index: i, Text: c, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// AreEquivalent reports whether a and b score at least threshold. A
// non-positive threshold selects DefaultEquivalenceThreshold.
func AreEquivalent(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultEquivalenceThreshold
	}
	return Similarity(a, b) >= threshold
}

func jaccard(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}

	intersection := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// semanticSimilarity averages, over both token sets, each token's best match
// in the other set.
func semanticSimilarity(a, b []string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}

	sum := bestMatchSum(a, b) + bestMatchSum(b, a)
	return clamp(sum / float64(total))
}

func bestMatchSum(from, to []string) float64 {
	var sum float64
	for _, t := range from {
		best := 0.0
		for _, u := range to {
			if s := tokenSimilarity(t, u); s > best {
				best = s
				if best == 1.0 {
					break
				}
			}
		}
		sum += best
	}
	return sum
}

const (
	synonymScore     = 0.9
	containmentScore = 0.6
	minCompoundLen   = 4
	fuzzyFloor       = 0.7
	fuzzyScale       = 0.5
)

// tokenSimilarity is symmetric in its arguments.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if areSynonyms(a, b) {
		return synonymScore
	}

	lenA := utf8.RuneCountInString(a)
	lenB := utf8.RuneCountInString(b)
	if lenA >= minCompoundLen && lenB >= minCompoundLen &&
		(strings.Contains(a, b) || strings.Contains(b, a)) {
		return containmentScore
	}

	if sim := editSimilarity(a, b); sim > fuzzyFloor {
		return sim * fuzzyScale
	}
	return 0
}

// editSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return clamp(1 - float64(distance)/float64(maxLen))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
