package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campusrag/internal/config"
	"campusrag/internal/observability"
)

// NewConfiguredReranker builds the HTTP cross-encoder reranker described by
// cfg, or nil if no reranker endpoint is configured. The served model
// (e.g. BAAI/bge-reranker-v2-m3) is expected to expose the common
// single-pair scoring contract: POST {query, text} -> {score}.
func NewConfiguredReranker(cfg config.RerankerConfig) Reranker {
	if cfg.BaseURL == "" {
		return nil
	}
	client := observability.NewHTTPClient(&http.Client{Timeout: 10 * time.Second})
	if cfg.APIKey != "" {
		client = observability.WithHeaders(client, map[string]string{"Authorization": "Bearer " + cfg.APIKey})
	}
	return NewHTTPCrossEncoderReranker(cfg.Type, func(ctx context.Context, query, doc string) (float64, error) {
		return scoreViaHTTP(ctx, client, cfg, query, doc)
	})
}

type scoreRequest struct {
	Model   string `json:"model,omitempty"`
	Query   string `json:"query"`
	Text    string `json:"text"`
	UseFP16 bool   `json:"use_fp16,omitempty"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

func scoreViaHTTP(ctx context.Context, client *http.Client, cfg config.RerankerConfig, query, doc string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Model: cfg.Model, Query: query, Text: doc, UseFP16: cfg.UseFP16})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("retrieve: reranker %q returned status %d", cfg.Type, resp.StatusCode)
	}
	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("retrieve: decode reranker response: %w", err)
	}
	return out.Score, nil
}
