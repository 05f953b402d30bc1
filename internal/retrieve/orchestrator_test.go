package retrieve

import (
	"context"
	"testing"
	"time"

	"campusrag/internal/store"
	"campusrag/internal/types"
	"github.com/stretchr/testify/require"
)

func seedEmbeddingItems(t *testing.T, ds store.DocumentStore, items []types.EmbeddingItem) {
	t.Helper()
	ctx := context.Background()
	for _, it := range items {
		doc := store.Document{
			"title":        it.Title,
			"url":          it.URL,
			"text":         it.Text,
			"html":         it.HTML,
			"markdown":     it.Markdown,
			"content_type": string(it.ContentType),
			"source":       string(it.Source),
			"chunk_index":  it.ChunkIndex,
		}
		if !it.Date.IsZero() {
			doc["date"] = it.Date.Format("2006-01-02")
		}
		require.NoError(t, ds.InsertOne(ctx, embeddingItemsCollection, doc))
	}
}

func TestOrchestratorNoAnswerOnEmptyCombine(t *testing.T) {
	o := &Orchestrator{Docs: store.NewMemoryDocumentStore()}
	out := o.Run(context.Background(), "graduation requirements", []string{"graduation", "requirements"}, time.Now())
	require.True(t, out.NoAnswer)
}

func TestOrchestratorListShortcutBypassesScoring(t *testing.T) {
	ds := store.NewMemoryDocumentStore()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddingItems(t, ds, []types.EmbeddingItem{
		{Title: "Scholarship A", URL: "https://dept.ac.kr/scholarship/1", Text: "details", Date: now},
		{Title: "Seminar B", URL: "https://dept.ac.kr/seminar/2", Text: "details", Date: now},
	})
	o := &Orchestrator{Docs: ds}
	out := o.Run(context.Background(), "recent scholarship news", []string{"recent", "scholarship"}, now)
	require.True(t, out.ListShortcut)
	require.Len(t, out.Chunks, 1)
	require.Equal(t, "Scholarship A", out.Chunks[0].Title)
}

func TestDedupeByURLKeepsHighestScoreAndCuts(t *testing.T) {
	cands := []types.Candidate{
		{URL: "https://a", Score: 1},
		{URL: "https://a", Score: 5},
		{URL: "https://b", Score: 2},
	}
	out := dedupeByURL(cands, 1)
	require.Len(t, out, 1)
	require.Equal(t, 5.0, out[0].Score)
}

func TestDistinctTitlesPreservesOrderAndStopsAtN(t *testing.T) {
	cands := []types.Candidate{
		{Title: "A", Score: 3},
		{Title: "A", Score: 2},
		{Title: "B", Score: 1},
		{Title: "C", Score: 0.5},
	}
	got := distinctTitles(cands, 2)
	require.Equal(t, []string{"A", "B"}, got)
}

func TestTemporalReboostExactMatchOutranksOthers(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	intent := types.TemporalIntent{Year: 2023, Semester: 2}
	cands := []types.Candidate{
		{Title: "old", Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Score: 10},
		{Title: "match", Date: time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), Score: 6},
	}
	out := temporalReboost(cands, intent, now)
	require.Equal(t, "match", out[0].Title)
}

func TestEnrichChunksDeduplicatesByWhitespaceNormalizedText(t *testing.T) {
	ds := store.NewMemoryDocumentStore()
	seedEmbeddingItems(t, ds, []types.EmbeddingItem{
		{Title: "X", Text: "hello   world"},
		{Title: "X", Text: "hello world"},
		{Title: "X", Text: "different text"},
	})
	o := &Orchestrator{Docs: ds}
	out := o.enrichChunks(context.Background(), []string{"X"})
	require.Len(t, out, 2)
}

func TestListShortcutCategoryRequiresNonCategoryNoun(t *testing.T) {
	_, ok := listShortcutCategory("hello there", []string{"hello", "there"})
	require.False(t, ok)

	cat, ok := listShortcutCategory("recent scholarship news", []string{"recent", "scholarship"})
	require.True(t, ok)
	require.Equal(t, "scholarship", cat)
}
