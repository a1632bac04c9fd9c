package search

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "she": {},
	"that": {}, "the": {}, "their": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

// Tokenize lowercases and splits on any non-alphanumeric rune.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns the deduplicated tokens of s with stop words removed,
// preserving first-seen order.
func Keywords(s string) []string {
	tokens := Tokenize(s)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Trigrams builds the character-trigram set of s, one padded window per
// token, pg_trgm style.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		padded := "  " + tok + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

// TrigramScore is the containment of a's trigrams in b's: monotone in
// lexical overlap, 1.0 when every trigram of a appears in b, 0 when none do.
func TrigramScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	for t := range a {
		if _, ok := b[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(a))
}

// TrigramJaccard is the symmetric trigram-set overlap of a and b.
func TrigramJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	for t := range a {
		if _, ok := b[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(a)+len(b)-matched)
}
