// Package retrieve implements the hybrid retrieval half of the pipeline:
// the Dense Retriever, Result Combiner, Reranker registry, Temporal Intent
// Parser, and the Retrieval Orchestrator state machine.
package retrieve

import (
	"context"
	"fmt"

	"campusrag/internal/clock"
	"campusrag/internal/llm"
	"campusrag/internal/recency"
	"campusrag/internal/store"
	"campusrag/internal/types"
)

// DenseRetriever embeds the query and runs a top-k vector search, then
// rescales each hit by the dense scale factor and the recency weight, and
// adds a noun-match bonus.
type DenseRetriever struct {
	embedder    *llm.EmbeddingClient
	vectors     store.VectorIndex
	scaleFactor float64
	keywords    recency.KeywordSets
}

func NewDenseRetriever(embedder *llm.EmbeddingClient, vectors store.VectorIndex, scaleFactor float64) *DenseRetriever {
	if scaleFactor == 0 {
		scaleFactor = 3.26
	}
	return &DenseRetriever{embedder: embedder, vectors: vectors, scaleFactor: scaleFactor, keywords: recency.DefaultKeywords}
}

// Search embeds query, runs a top-k vector search, and returns adjusted
// candidates sorted descending by score.
func (d *DenseRetriever) Search(ctx context.Context, query string, queryNouns []string, topK int) ([]types.Candidate, error) {
	vecs, err := d.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("retrieve: no query embedding returned")
	}

	matches, err := d.vectors.Query(ctx, vecs[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve: vector query: %w", err)
	}

	now := clock.Now()
	out := make([]types.Candidate, 0, len(matches))
	for _, m := range matches {
		c := candidateFromMetadata(m.Score, m.Metadata)
		c.Score *= d.scaleFactor
		c.Score = recency.AdjustSimilarity(c.Score, c.Date, now, queryNouns, d.keywords)
		c.Score += nounMatchBonus(queryNouns, c.Text)
		out = append(out, c)
	}
	sortCandidatesDesc(out)
	return out, nil
}

func candidateFromMetadata(score float64, md map[string]string) types.Candidate {
	c := types.Candidate{
		Score:          score,
		Title:          md["title"],
		URL:            md["url"],
		Text:           md["preview"],
		ContentType:    types.ContentType(md["content_type"]),
		Source:         types.SourceKind(md["source"]),
		ImageURL:       md["image_url"],
		AttachmentURL:  md["attachment_url"],
		AttachmentType: md["attachment_type"],
	}
	if dateStr := md["date"]; dateStr != "" {
		if t, err := clock.ParseDate(dateStr); err == nil {
			c.Date = t
		}
	}
	return c
}

// nounMatchBonus gives a small per-noun-hit bonus against the retrieved
// text, proportional to the count of query nouns present.
func nounMatchBonus(queryNouns []string, text string) float64 {
	if len(queryNouns) == 0 || text == "" {
		return 0
	}
	hits := 0
	for _, n := range queryNouns {
		if containsFold(text, n) {
			hits++
		}
	}
	return float64(hits) * 0.05
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return indexFold(haystack, needle) >= 0
}

func indexFold(s, substr string) int {
	ls, lsub := len([]rune(s)), len([]rune(substr))
	if lsub == 0 || lsub > ls {
		return -1
	}
	rs := []rune(s)
	rsub := []rune(substr)
	for i := 0; i+lsub <= len(rs); i++ {
		match := true
		for j := 0; j < lsub; j++ {
			if toLowerRune(rs[i+j]) != toLowerRune(rsub[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func sortCandidatesDesc(cands []types.Candidate) {
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].Score > cands[j-1].Score; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
}
