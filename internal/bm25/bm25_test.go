package bm25

import (
	"context"
	"testing"
	"time"

	"campusrag/internal/store"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []Doc {
	return []Doc{
		{Title: "scholarship notice", Text: "applications for scholarship open now", URL: "u1", Date: time.Now()},
		{Title: "seminar schedule", Text: "weekly seminar on machine learning", URL: "u2", Date: time.Now()},
		{Title: "graduate school info", Text: "No content", URL: "u3", Date: time.Now()},
	}
}

func TestSearchRanksRelevantDocHigher(t *testing.T) {
	idx := Build(context.Background(), sampleDocs(), BuildOptions{})
	results, _ := idx.Search(Nouns("scholarship"), 3)
	require.NotEmpty(t, results)
	require.Equal(t, "u1", results[0].Doc.URL)
}

func TestSearchReturnsFullSimilarityArray(t *testing.T) {
	idx := Build(context.Background(), sampleDocs(), BuildOptions{})
	_, all := idx.Search(Nouns("seminar"), 1)
	require.Len(t, all, 3)
}

func TestAdjustSimilaritiesBoostsTitleOverlap(t *testing.T) {
	idx := Build(context.Background(), sampleDocs(), BuildOptions{})
	withTitleWord, _ := idx.Search([]string{"scholarship"}, 3)
	withoutOverlap, _ := idx.Search([]string{"zzz"}, 3)
	require.Greater(t, withTitleWord[0].Similarity, withoutOverlap[0].Similarity)
}

func TestNoContentDocBoostedWhenTextIsPlaceholder(t *testing.T) {
	idx := Build(context.Background(), sampleDocs(), BuildOptions{})
	_, all := idx.Search(nil, 0)
	require.Len(t, all, 3)

	// u3's text is the "No content" marker; its title shares no token with
	// the query, so its only adjustment is the x1.5 placeholder boost.
	raw := idx.scores([]string{"content"})
	require.Greater(t, raw[2], 0.0)
	_, boosted := idx.Search([]string{"content"}, 0)
	require.InDelta(t, raw[2]/idx.normalize*1.5, boosted[2], 1e-9)
}

func TestLoadOrBuildRoundTripsThroughCache(t *testing.T) {
	cache := store.NewMemoryCache()
	ctx := context.Background()
	docs := sampleDocs()

	idx1, err := LoadOrBuild(ctx, cache, "bm25:test", docs, BuildOptions{})
	require.NoError(t, err)
	results1, _ := idx1.Search(Nouns("scholarship"), 1)

	idx2, err := LoadOrBuild(ctx, cache, "bm25:test", docs, BuildOptions{})
	require.NoError(t, err)
	results2, _ := idx2.Search(Nouns("scholarship"), 1)

	require.Equal(t, results1[0].Doc.URL, results2[0].Doc.URL)
}

func TestLoadOrBuildRebuildsOnDocCountChange(t *testing.T) {
	cache := store.NewMemoryCache()
	ctx := context.Background()
	docs := sampleDocs()

	_, err := LoadOrBuild(ctx, cache, "bm25:test2", docs, BuildOptions{})
	require.NoError(t, err)

	grown := append(append([]Doc{}, docs...), Doc{Title: "extra", Text: "extra doc", URL: "u4"})
	idx, err := LoadOrBuild(ctx, cache, "bm25:test2", grown, BuildOptions{})
	require.NoError(t, err)
	_, all := idx.Search(nil, 0)
	require.Len(t, all, 4)
}

func TestNounsWhitespaceFallback(t *testing.T) {
	toks := Nouns("Scholarship Applications Open!")
	require.Contains(t, toks, "scholarship")
	require.Contains(t, toks, "applications")
}

func TestParseHTMLToTextPassesThroughMarkdownTable(t *testing.T) {
	md := "| a | b |\n| --- | --- |\n| 1 | 2 |"
	require.Equal(t, md, parseHTMLToText(md))
}

func TestParseHTMLToTextStripsTags(t *testing.T) {
	got := parseHTMLToText("<p>hello <b>world</b></p>")
	require.Contains(t, got, "hello")
	require.Contains(t, got, "world")
	require.NotContains(t, got, "<p>")
}
