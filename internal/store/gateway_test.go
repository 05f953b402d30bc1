package store

import (
	"context"
	"testing"
	"time"

	"campusrag/internal/config"

	"github.com/stretchr/testify/require"
)

func TestNewGatewayDefaultsToMemoryBackends(t *testing.T) {
	cfg := config.Config{}
	gw, err := NewGateway(context.Background(), cfg)
	require.NoError(t, err)
	defer gw.Close()

	require.NoError(t, gw.Docs.InsertOne(context.Background(), "posts", Document{"_id": "1", "title": "hello"}))
	doc, err := gw.Docs.FindOne(context.Background(), "posts", Document{"_id": "1"})
	require.NoError(t, err)
	require.Equal(t, "hello", doc["title"])

	require.NoError(t, gw.Vectors.Upsert(context.Background(), "v1", []float32{1, 0}, nil))
	stats, err := gw.Vectors.DescribeIndexStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalVectorCount)

	require.NoError(t, gw.Cache.SetEX(context.Background(), "k", []byte("v"), time.Hour))
	exists, err := gw.Cache.Exists(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestNewGatewayRejectsUnknownBackend(t *testing.T) {
	cfg := config.Config{}
	cfg.DocStore.Backend = "oracle"
	_, err := NewGateway(context.Background(), cfg)
	require.Error(t, err)
}
