package ingest

import (
	"context"
	"testing"
	"time"

	"campusrag/internal/config"
	"campusrag/internal/contentapi"
	"campusrag/internal/fetch"
	"campusrag/internal/llm"
	"campusrag/internal/multimodal"
	"campusrag/internal/store"
	"campusrag/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) (*Processor, store.DocumentStore, store.VectorIndex) {
	t.Helper()
	docs := store.NewMemoryDocumentStore()
	vectors := store.NewMemoryVectorIndex()
	mm := multimodal.NewProcessor(
		fetch.New(time.Second, 0, time.Millisecond),
		contentapi.NewClient("http://unused", "", "model", time.Second),
		store.NewMemoryCache(),
		850, 100,
	)
	embedder := llm.NewEmbeddingClient(config.EmbeddingConfig{Model: "test", Dimensions: 2})
	p := NewProcessor(docs, vectors, embedder, mm, 850, 100, zerolog.Nop())
	return p, docs, vectors
}

func TestIngestPostSkipsDuplicateTitleAndHash(t *testing.T) {
	p, docs, _ := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, docs.InsertOne(ctx, postsCollection, store.Document{
		"_id": "dup", "title": "Same notice", "content_hash": "abc123",
	}))

	post := &types.Post{Title: "Same notice", ContentHash: "abc123", BodyText: "body"}
	outcome := p.IngestPost(ctx, post)
	require.Equal(t, types.Skipped, outcome.Result.Kind)
}

func TestCollectEmbeddingItemsChunksBody(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	post := &types.Post{Title: "t", BodyText: "word ", ContentHash: "h"}
	for i := 0; i < 300; i++ {
		post.BodyText += "word "
	}
	items, warnings, critical := p.collectEmbeddingItems(context.Background(), post)
	require.False(t, critical)
	require.Empty(t, warnings)
	require.NotEmpty(t, items)
	for _, it := range items {
		require.Equal(t, types.ContentText, it.ContentType)
		require.Equal(t, types.SourceOriginalPost, it.Source)
	}
}

func TestMarkerIDIsStableForSamePostShape(t *testing.T) {
	p1 := &types.Post{Title: "a", ImageURLs: []string{"img1"}, ContentHash: "h1"}
	p2 := &types.Post{Title: "a", ImageURLs: []string{"img1"}, ContentHash: "h1"}
	require.Equal(t, markerID(p1), markerID(p2))
}

func TestPreviewTruncatesToLimit(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	require.Len(t, preview(string(long), 200), 200)
	require.Equal(t, "short", preview("short", 200))
}
