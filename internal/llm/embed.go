package llm

import (
	"context"
	"fmt"

	"campusrag/internal/config"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// EmbeddingClient batches calls to the configured embedding endpoint for
// the embedding uploader.
type EmbeddingClient struct {
	client openai.Client
	model  string
	dim    int
}

func NewEmbeddingClient(cfg config.EmbeddingConfig) *EmbeddingClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &EmbeddingClient{client: openai.NewClient(opts...), model: cfg.Model, dim: cfg.Dimensions}
}

func (c *EmbeddingClient) Dimension() int { return c.dim }

// EmbedBatch returns one embedding vector per input text, in order.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("llm: embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
