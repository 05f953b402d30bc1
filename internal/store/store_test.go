package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryDocumentStoreCRUD(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDocumentStore()
	require.NoError(t, ds.CreateIndex(ctx, "posts", "board_type", false))

	require.NoError(t, ds.InsertOne(ctx, "posts", Document{"title": "A", "board_type": "notice"}))
	n, err := ds.CountDocuments(ctx, "posts", Document{"board_type": "notice"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := ds.FindOne(ctx, "posts", Document{"title": "A"})
	require.NoError(t, err)
	require.Equal(t, "A", got["title"])

	_, err = ds.FindOne(ctx, "posts", Document{"title": "missing"})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ds.UpdateOne(ctx, "posts", Document{"title": "A"}, Document{"board_type": "job"}, false))
	got, _ = ds.FindOne(ctx, "posts", Document{"title": "A"})
	require.Equal(t, "job", got["board_type"])

	require.NoError(t, ds.UpdateOne(ctx, "posts", Document{"title": "B"}, Document{"board_type": "seminar"}, true))
	got, err = ds.FindOne(ctx, "posts", Document{"title": "B"})
	require.NoError(t, err)
	require.Equal(t, "seminar", got["board_type"])

	removed, err := ds.DeleteMany(ctx, "posts", Document{"title": "A"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestMemoryDocumentStoreFindMany(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDocumentStore()
	require.NoError(t, ds.InsertOne(ctx, "chunks", Document{"title": "X", "chunk_index": 0}))
	require.NoError(t, ds.InsertOne(ctx, "chunks", Document{"title": "X", "chunk_index": 1}))
	require.NoError(t, ds.InsertOne(ctx, "chunks", Document{"title": "Y", "chunk_index": 0}))

	all, err := ds.FindMany(ctx, "chunks", Document{"title": "X"}, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	limited, err := ds.FindMany(ctx, "chunks", Document{"title": "X"}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestMemoryVectorIndexQueryOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	vi := NewMemoryVectorIndex()
	require.NoError(t, vi.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"title": "A"}))
	require.NoError(t, vi.Upsert(ctx, "b", []float32{0, 1}, map[string]string{"title": "B"}))
	require.NoError(t, vi.Upsert(ctx, "c", []float32{0.9, 0.1}, map[string]string{"title": "C"}))

	matches, err := vi.Query(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "a", matches[0].ID)
	require.Equal(t, "c", matches[1].ID)
	require.Equal(t, "b", matches[2].ID)

	stats, err := vi.DescribeIndexStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalVectorCount)

	fetched, err := vi.Fetch(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	require.Contains(t, fetched, "a")
	require.NotContains(t, fetched, "missing")
}

func TestMemoryVectorIndexListPaginates(t *testing.T) {
	ctx := context.Background()
	vi := NewMemoryVectorIndex()
	for i := 0; i < 5; i++ {
		require.NoError(t, vi.Upsert(ctx, string(rune('a'+i)), []float32{float32(i)}, nil))
	}
	ch, err := vi.List(ctx, 2)
	require.NoError(t, err)
	var total int
	for batch := range ch {
		require.LessOrEqual(t, len(batch), 2)
		total += len(batch)
	}
	require.Equal(t, 5, total)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.SetEX(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetEX(ctx, "k2", []byte("v2"), time.Hour))
	v, ok, err := c.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	exists, err := c.Exists(ctx, "k2")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k2"))
	exists, _ = c.Exists(ctx, "k2")
	require.False(t, exists)
}
