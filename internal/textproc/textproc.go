// Package textproc normalizes and tokenizes chat queries and knowledge text.
// It is shared by retrieval scoring and query similarity, so both see the
// same token stream for the same input.
package textproc

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the shortest token Tokenize keeps.
const MinTokenLength = 3

// Normalize lowercases text, folds diacritics, replaces punctuation with
// spaces, collapses whitespace and drops conversational filler particles.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	words := normalizedWords(text)
	return strings.Join(words, " ")
}

// Words returns the normalized words of text, stopwords included.
func Words(text string) []string {
	return normalizedWords(text)
}

// Tokenize returns the normalized words of text minus stopwords and words
// shorter than MinTokenLength, in input order. Duplicates are kept.
func Tokenize(text string) []string {
	words := normalizedWords(text)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < MinTokenLength || IsStopword(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// UniqueTokens returns the sorted token set of text.
func UniqueTokens(text string) []string {
	return Unique(Tokenize(text))
}

// Unique returns the sorted set of tokens.
func Unique(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func normalizedWords(text string) []string {
	if text == "" {
		return nil
	}

	folded := foldText(strings.ToLower(text))

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := fields[:0]
	for _, f := range fields {
		if IsFiller(f) {
			continue
		}
		words = append(words, f)
	}
	return words
}

// foldText strips combining marks. A few characters only settle after a
// second lowercase+fold round, so it repeats until the text is stable.
func foldText(s string) string {
	for i := 0; i < 3; i++ {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		folded, _, err := transform.String(t, s)
		if err != nil {
			return s
		}
		folded = strings.ToLower(folded)
		if folded == s {
			break
		}
		s = folded
	}
	return s
}
