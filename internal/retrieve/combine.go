package retrieve

import (
	"time"

	"campusrag/internal/bm25"
	"campusrag/internal/recency"
	"campusrag/internal/types"
)

// Combine implements the Result Combiner: the keyword filter runs once
// against dense hits before merging, dense hits carrying a
// matching-title BM25 score are summed, unmatched BM25 hits are taken
// through the date adjuster and added on their own, the result is sorted
// and cut to topN, and the keyword filter runs once more.
func Combine(dense []types.Candidate, bmResults []bm25.Result, queryNouns []string, now time.Time, topN int) []types.Candidate {
	dense = ApplyKeywordFilter(dense, queryNouns, DefaultKeywordRules)

	byTitle := make(map[string]int, len(bmResults))
	for i, r := range bmResults {
		byTitle[r.Doc.Title] = i
	}

	matched := make(map[string]bool, len(dense))
	out := make([]types.Candidate, 0, len(dense)+len(bmResults))

	for _, d := range dense {
		if i, ok := byTitle[d.Title]; ok {
			d.Score += bmResults[i].Similarity
			matched[d.Title] = true
		}
		out = append(out, d)
	}

	for _, r := range bmResults {
		if matched[r.Doc.Title] {
			continue
		}
		score := recency.AdjustSimilarity(r.Similarity, r.Doc.Date, now, queryNouns, recency.DefaultKeywords)
		out = append(out, types.Candidate{
			Score:       score,
			Title:       r.Doc.Title,
			Date:        r.Doc.Date,
			Text:        r.Doc.Text,
			URL:         r.Doc.URL,
			ContentType: types.ContentText,
			Source:      types.SourceOriginalPost,
		})
	}

	sortCandidatesDesc(out)
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	out = ApplyKeywordFilter(out, queryNouns, DefaultKeywordRules)
	sortCandidatesDesc(out)
	return out
}
