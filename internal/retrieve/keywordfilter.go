package retrieve

import (
	"strings"

	"campusrag/internal/types"
)

// KeywordRule is one declarative keyword-based score adjustment: the
// original pipeline had several dozen of these hand-written as one-off
// `if` statements tied to a single deployment's board content (specific
// numeric post ids, specific major-program names). That is not something
// a rewrite can generalize meaningfully, so this package exposes a small
// declarative rule engine instead and seeds it with a handful of rules
// that illustrate the pattern: semester/exam-period relevance and the
// graduate-school boost-or-penalty the BM25 similarity adjuster also
// applies at the title-token level (recorded as an Open Question decision
// in the project's design notes).
type KeywordRule struct {
	Name             string
	RequireQueryAny  []string // at least one of these present in query nouns
	RequireQueryNone []string // none of these present in query nouns
	TitleContainsAny []string // at least one substring present in the title
	Delta            float64
}

func anyNounIn(nouns []string, targets []string) bool {
	for _, n := range nouns {
		for _, t := range targets {
			if n == t {
				return true
			}
		}
	}
	return false
}

func titleContainsAny(title string, targets []string) bool {
	for _, t := range targets {
		if strings.Contains(title, t) {
			return true
		}
	}
	return false
}

func (r KeywordRule) matches(queryNouns []string, title string) bool {
	if len(r.RequireQueryAny) > 0 && !anyNounIn(queryNouns, r.RequireQueryAny) {
		return false
	}
	if len(r.RequireQueryNone) > 0 && anyNounIn(queryNouns, r.RequireQueryNone) {
		return false
	}
	if len(r.TitleContainsAny) > 0 && !titleContainsAny(title, r.TitleContainsAny) {
		return false
	}
	return true
}

// DefaultKeywordRules is a representative seed set seeding the boost/penalty
// pattern the original keyword filter expressed with hand-written Korean
// literals for one university's specific board taxonomy.
var DefaultKeywordRules = []KeywordRule{
	{Name: "exam-period-midterm", RequireQueryAny: []string{"중간"}, TitleContainsAny: []string{"중간"}, Delta: 1.0},
	{Name: "exam-period-final", RequireQueryAny: []string{"기말"}, TitleContainsAny: []string{"기말"}, Delta: 1.0},
	{Name: "semester-1", RequireQueryAny: []string{"1학기"}, TitleContainsAny: []string{"1학기"}, Delta: 1.0},
	{Name: "semester-2", RequireQueryAny: []string{"2학기"}, TitleContainsAny: []string{"2학기"}, Delta: 1.0},
	{Name: "semester-mismatch-1-in-2", RequireQueryAny: []string{"1학기"}, TitleContainsAny: []string{"2학기"}, Delta: -1.0},
	{Name: "semester-mismatch-2-in-1", RequireQueryAny: []string{"2학기"}, TitleContainsAny: []string{"1학기"}, Delta: -1.0},
	{Name: "graduate-school-match", RequireQueryAny: []string{"대학원", "대학원생"}, TitleContainsAny: []string{"대학원", "대학원생"}, Delta: 2.0},
	{Name: "graduate-school-title-only", RequireQueryNone: []string{"대학원", "대학원생"}, TitleContainsAny: []string{"대학원"}, Delta: -2.0},
	{Name: "leave-of-absence", RequireQueryAny: []string{"휴학"}, TitleContainsAny: []string{"휴학"}, Delta: 1.0},
	{Name: "reinstatement", RequireQueryAny: []string{"복학"}, TitleContainsAny: []string{"복학"}, Delta: 1.0},
}

// ApplyKeywordFilter adjusts each candidate's score by every matching rule,
// in place, and returns the same slice for chaining.
func ApplyKeywordFilter(cands []types.Candidate, queryNouns []string, rules []KeywordRule) []types.Candidate {
	for i := range cands {
		for _, r := range rules {
			if r.matches(queryNouns, cands[i].Title) {
				cands[i].Score += r.Delta
			}
		}
	}
	return cands
}
