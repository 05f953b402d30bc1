// Package recency implements the shared date/recency weighting utility:
// it maps (post_date, now, query_tokens) to a score multiplier used by
// both the Dense Retriever and the Result Combiner.
package recency

import (
	"time"

	"campusrag/internal/clock"
)

// Baseline is the fixed cutoff date before which every post gets the flat
// "old post" multiplier regardless of age.
var Baseline = time.Date(2024, 1, 1, 0, 0, 0, 0, clock.Location)

// KeywordSets groups the domain keyword lists that nudge the recency
// multiplier. They are exported so board-specific configuration can extend
// them without touching the scoring code.
type KeywordSets struct {
	Graduation []string // e.g. graduation / interview notices
	Scholarship []string
	Recency     []string // "recent", "latest", "now", "current"
}

// DefaultKeywords mirrors the keyword groups the weighting function checks
// for in the source corpus's query-noun stream.
var DefaultKeywords = KeywordSets{
	Graduation:  []string{"졸업", "인터뷰"},
	Scholarship: []string{"장학"},
	Recency:     []string{"최근", "최신", "지금", "현재"},
}

func anyIn(nouns []string, set []string) bool {
	lookup := make(map[string]struct{}, len(set))
	for _, s := range set {
		lookup[s] = struct{}{}
	}
	for _, n := range nouns {
		if _, ok := lookup[n]; ok {
			return true
		}
	}
	return false
}

// Weight implements calculate_weight_by_days_difference: day-band decay
// from 1.355 down to a floor around 0.88, with query-keyword bonuses.
// Never returns 0.
func Weight(postDate, now time.Time, queryNouns []string, kw KeywordSets) float64 {
	graduateBonus := 0.0
	if anyIn(queryNouns, kw.Graduation) {
		graduateBonus = 1.0
	}
	scholarBonus := 0.0
	if anyIn(queryNouns, kw.Scholarship) {
		scholarBonus = 1.0
	}

	if !postDate.After(Baseline) {
		return 1.35 + graduateBonus/5
	}

	recentBonus := 0.0
	if anyIn(queryNouns, kw.Recency) {
		recentBonus = 1.5
	}

	days := clock.DaysBetween(postDate, now)
	switch {
	case days <= 6:
		return 1.355 + recentBonus + graduateBonus + scholarBonus
	case days <= 12:
		return 1.330 + recentBonus/3.0 + graduateBonus/1.2 + scholarBonus/1.5
	case days <= 18:
		return 1.321 + recentBonus/5.0 + graduateBonus/1.3 + scholarBonus/2.0
	case days <= 24:
		return 1.310 + recentBonus/7.0 + graduateBonus/1.4 + scholarBonus/2.5
	case days <= 30:
		return 1.290 + recentBonus/9.0 + graduateBonus/1.5 + scholarBonus/3.0
	case days <= 36:
		return 1.270 + graduateBonus/1.6 + scholarBonus/3.5
	case days <= 45:
		return 1.250 + graduateBonus/1.7 + scholarBonus/4.0
	case days <= 60:
		return 1.230 + graduateBonus/1.8 + scholarBonus/4.5
	case days <= 90:
		return 1.210 + graduateBonus/2.0 + scholarBonus/5.0
	}

	monthDiff := (days - 90) / 30
	switch monthDiff {
	case 0:
		return 1.19
	case 1:
		return 1.17 - recentBonus/6 - scholarBonus/10
	case 2:
		return 1.15 - recentBonus/5 - scholarBonus/9
	case 3:
		return 1.13 - recentBonus/4 - scholarBonus/7
	case 4:
		return 1.11 - recentBonus/3 - scholarBonus/5
	default:
		return 0.88 - recentBonus/2 - scholarBonus/5
	}
}

// AdjustSimilarity scales a raw similarity score by Weight, the direct
// analogue of adjust_date_similarity in the source scoring service.
func AdjustSimilarity(similarity float64, postDate, now time.Time, queryNouns []string, kw KeywordSets) float64 {
	return similarity * Weight(postDate, now, queryNouns, kw)
}

// CoarseBoost implements the coarser multiplier the Retrieval Orchestrator
// applies uniformly at combine-time: <=6mo +50%, <=1y +30%, <=2y +10%,
// else -10%.
func CoarseBoost(postDate, now time.Time) float64 {
	days := clock.DaysBetween(postDate, now)
	switch {
	case days <= 183:
		return 1.5
	case days <= 365:
		return 1.3
	case days <= 730:
		return 1.1
	default:
		return 0.9
	}
}
