package retrieve

import (
	"testing"
	"time"

	"campusrag/internal/bm25"
	"campusrag/internal/types"
	"github.com/stretchr/testify/require"
)

func TestCombineSumsMatchingTitleScores(t *testing.T) {
	now := time.Now()
	dense := []types.Candidate{{Title: "notice A", Score: 1.0, Date: now}}
	bm := []bm25.Result{{Doc: bm25.Doc{Title: "notice A", Date: now}, Similarity: 0.5}}
	out := Combine(dense, bm, nil, now, 10)
	require.Len(t, out, 1)
	require.InDelta(t, 1.5, out[0].Score, 1e-9)
}

func TestCombineKeepsUnmatchedBM25ThroughDateAdjuster(t *testing.T) {
	now := time.Now()
	bm := []bm25.Result{{Doc: bm25.Doc{Title: "only in bm25", Date: now}, Similarity: 1.0}}
	out := Combine(nil, bm, nil, now, 10)
	require.Len(t, out, 1)
	require.Equal(t, "only in bm25", out[0].Title)
	require.Greater(t, out[0].Score, 0.0)
}

func TestCombineCutsToTopN(t *testing.T) {
	now := time.Now()
	var dense []types.Candidate
	for i := 0; i < 5; i++ {
		dense = append(dense, types.Candidate{Title: string(rune('a' + i)), Score: float64(i), Date: now})
	}
	out := Combine(dense, nil, nil, now, 2)
	require.Len(t, out, 2)
}

func TestApplyKeywordFilterGraduateSchoolBoost(t *testing.T) {
	cands := []types.Candidate{{Title: "대학원 입학 안내", Score: 1.0}}
	out := ApplyKeywordFilter(cands, []string{"대학원"}, DefaultKeywordRules)
	require.InDelta(t, 3.0, out[0].Score, 1e-9)
}

func TestApplyKeywordFilterGraduateSchoolTitleOnlyPenalty(t *testing.T) {
	cands := []types.Candidate{{Title: "대학원 입학 안내", Score: 1.0}}
	out := ApplyKeywordFilter(cands, []string{"장학금"}, DefaultKeywordRules)
	require.InDelta(t, -1.0, out[0].Score, 1e-9)
}
