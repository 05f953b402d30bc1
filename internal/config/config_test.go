package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, k := range []string{"CHUNK_SIZE", "BM25_K1", "TOP_K_DOCUMENTS", "MAX_WORKERS"} {
		os.Unsetenv(k)
	}
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 850, cfg.Ingestion.ChunkSize)
	require.Equal(t, 100, cfg.Ingestion.ChunkOverlap)
	require.Equal(t, 1.5, cfg.Retrieval.BM25K1)
	require.Equal(t, 0.75, cfg.Retrieval.BM25B)
	require.Equal(t, 30, cfg.Retrieval.TopKDocuments)
	require.Equal(t, 3, cfg.Ingestion.MaxWorkers)
}

func TestLoadHonoursOverride(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "400")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 400, cfg.Ingestion.ChunkSize)
}

func TestLoadBoardsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/boards.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
boards:
  - type: notice
    root_url: https://example.edu/board/notice
    id_floor: 1000
    title_selector: ".title"
`), 0o644))
	boards, err := LoadBoards(path)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	require.Equal(t, "notice", boards[0].Type)
	require.Equal(t, 1000, boards[0].IDFloor)
}
