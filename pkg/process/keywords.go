package process

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords excluded from derived keyword sets. Keep the list small: its only
// job is to stop glue words from dominating overlap scores.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
	"you": {}, "your": {},
}

// Keywords derives the keyword set for a piece of text: lowercased tokens,
// stopwords removed, deduplicated, sorted. The same input always yields the
// same output, so re-crawling an unchanged page is a no-op for its entry.
func Keywords(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			seen[tok] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Tokenize splits text into lowercased alphanumeric tokens with stopwords
// removed. Order follows the input; duplicates are kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}
