// Package bm25 implements the BM25 index: parallel tokenization, Okapi
// BM25 scoring with an application-level normalization factor, and a
// similarity adjuster layered on top.
package bm25

import (
	"strings"
	"unicode"
)

// Nouns extracts query-noun-like tokens from free text. A morphological
// (noun-oriented) analyser is the ideal source for these tokens; no such
// analyser appears anywhere in this module's dependency surface, so this
// always runs the documented fallback path: whitespace/punctuation
// splitting plus stopword removal.
func Nouns(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "of": {}, "to": {},
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "에": {}, "의": {},
}
