package similarity

import (
	"strings"
	"unicode/utf8"
)

const (
	sameQuestionTypeScore  = 0.8
	mixedQuestionnessScore = 0.3

	lengthBlendWeight = 0.4
	bigramBlendWeight = 0.6
)

// questionMarkers is ordered: a query's type is the type of the first marker
// in this list that it contains.
var questionMarkers = []struct {
	word string
	kind string
}{
	{"apakah", "what"},
	{"apa", "what"},
	{"what", "what"},
	{"bagaimana", "how"},
	{"gimana", "how"},
	{"how", "how"},
	{"kenapa", "why"},
	{"mengapa", "why"},
	{"why", "why"},
	{"berapa", "quantity"},
	{"kapan", "when"},
	{"when", "when"},
	{"dimana", "where"},
	{"where", "where"},
	{"siapa", "who"},
	{"who", "who"},
	{"bisakah", "permission"},
	{"bolehkah", "permission"},
}

// questionType returns the detected interrogative type of text, or "" when
// text carries no marker word.
func questionType(normalized string) string {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		words[w] = struct{}{}
	}

	for _, m := range questionMarkers {
		if _, ok := words[m.word]; ok {
			return m.kind
		}
	}
	return ""
}

func isQuestion(raw, normalized string) bool {
	return strings.Contains(raw, "?") || questionType(normalized) != ""
}

// structuralSimilarity compares the shape of two queries.
func structuralSimilarity(rawA, rawB, normA, normB string) float64 {
	qA := isQuestion(rawA, normA)
	qB := isQuestion(rawB, normB)

	if qA && qB {
		typeA := questionType(normA)
		if typeA != "" && typeA == questionType(normB) {
			return sameQuestionTypeScore
		}
	} else if qA != qB {
		return mixedQuestionnessScore
	}

	return lengthBlendWeight*lengthSimilarity(normA, normB) + bigramBlendWeight*bigramSimilarity(normA, normB)
}

func lengthSimilarity(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

// bigramSimilarity is the Dice coefficient over character bigram sets.
func bigramSimilarity(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 && len(bb) == 0 {
		return 0
	}

	shared := 0
	for g := range ba {
		if _, ok := bb[g]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ba)+len(bb))
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(strings.ReplaceAll(s, " ", ""))
	set := make(map[string]struct{}, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}
