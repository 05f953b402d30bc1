package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"campusrag/internal/types"
)

// Reranker is the pluggable cross-encoder contract: each implementation
// concatenates title and the first ~500 characters of body before scoring.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, cands []types.Candidate, topK int) ([]types.Candidate, error)
	ComputeScore(ctx context.Context, query string, cand types.Candidate) (float64, error)
}

const rerankBodyChars = 500

func rerankSurface(c types.Candidate) string {
	text := c.Text
	if len([]rune(text)) > rerankBodyChars {
		text = string([]rune(text)[:rerankBodyChars])
	}
	return strings.TrimSpace(c.Title + " " + text)
}

// registry indexes rerankers by name ("bge", "cohere", ...) behind a
// pluggable reranker factory.
var registry = map[string]func() (Reranker, error){}

// RegisterReranker adds a constructor under name to the registry.
func RegisterReranker(name string, ctor func() (Reranker, error)) {
	registry[name] = ctor
}

// Resolve builds the named reranker. If unavailable at startup (unknown
// name, or the constructor errors because its backend can't be reached),
// the orchestrator degrades to the pre-rerank order by treating a nil
// Reranker as "no-op".
func Resolve(name string) Reranker {
	ctor, ok := registry[name]
	if !ok {
		return nil
	}
	r, err := ctor()
	if err != nil {
		return nil
	}
	return r
}

// NoopReranker leaves candidate order and scores unchanged, cutting to topK.
// The orchestrator itself represents "no reranker" with a nil Reranker.
type NoopReranker struct{}

func (NoopReranker) Name() string { return "noop" }

func (NoopReranker) Rerank(_ context.Context, _ string, cands []types.Candidate, topK int) ([]types.Candidate, error) {
	if topK > 0 && topK < len(cands) {
		return cands[:topK], nil
	}
	return cands, nil
}

func (NoopReranker) ComputeScore(_ context.Context, _ string, c types.Candidate) (float64, error) {
	return c.Score, nil
}

// HTTPCrossEncoderReranker calls an HTTP cross-encoder endpoint (e.g. a
// served BGE or Cohere reranker) that returns per-document relevance
// scores for (query, doc) pairs.
type HTTPCrossEncoderReranker struct {
	name    string
	scoreFn func(ctx context.Context, query, doc string) (float64, error)
}

func NewHTTPCrossEncoderReranker(name string, scoreFn func(ctx context.Context, query, doc string) (float64, error)) *HTTPCrossEncoderReranker {
	return &HTTPCrossEncoderReranker{name: name, scoreFn: scoreFn}
}

func (r *HTTPCrossEncoderReranker) Name() string { return r.name }

func (r *HTTPCrossEncoderReranker) ComputeScore(ctx context.Context, query string, c types.Candidate) (float64, error) {
	return r.scoreFn(ctx, query, rerankSurface(c))
}

func (r *HTTPCrossEncoderReranker) Rerank(ctx context.Context, query string, cands []types.Candidate, topK int) ([]types.Candidate, error) {
	scored := make([]types.Candidate, len(cands))
	copy(scored, cands)
	for i := range scored {
		s, err := r.ComputeScore(ctx, query, scored[i])
		if err != nil {
			return nil, fmt.Errorf("retrieve: rerank %q: %w", r.name, err)
		}
		scored[i].Score = s
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}
