// Package ingest implements the Document Processor & Embedding Uploader:
// per-post deduplication, multimodal orchestration, batched embedding
// calls, and monotonic vector-id assignment.
package ingest

import (
	"context"
	"fmt"

	"campusrag/internal/chunk"
	"campusrag/internal/clock"
	"campusrag/internal/llm"
	"campusrag/internal/multimodal"
	"campusrag/internal/store"
	"campusrag/internal/types"

	"github.com/rs/zerolog"
)

const postsCollection = "posts"
const metadataPreviewLimit = 200

// Processor drives ingestion for crawled posts: dedup, chunk, multimodal
// fan-out, and embedding upload.
type Processor struct {
	docs       store.DocumentStore
	vectors    store.VectorIndex
	embedder   *llm.EmbeddingClient
	multimodal *multimodal.Processor
	chunkSize  int
	chunkOver  int
	log        zerolog.Logger
}

func NewProcessor(docs store.DocumentStore, vectors store.VectorIndex, embedder *llm.EmbeddingClient, mm *multimodal.Processor, chunkSize, chunkOverlap int, log zerolog.Logger) *Processor {
	return &Processor{
		docs:       docs,
		vectors:    vectors,
		embedder:   embedder,
		multimodal: mm,
		chunkSize:  chunkSize,
		chunkOver:  chunkOverlap,
		log:        log,
	}
}

// Outcome summarizes the result of ingesting one post.
type Outcome struct {
	Post     *types.Post
	Result   types.Outcome
	Warnings []string
}

// IngestPost implements the per-post ingestion algorithm: dedup by
// title+content_hash, chunk the body, fan out images/attachments through
// the Multimodal Processor, and record a completion marker.
func (p *Processor) IngestPost(ctx context.Context, post *types.Post) Outcome {
	existing, err := p.docs.FindOne(ctx, postsCollection, store.Document{
		"title":        post.Title,
		"content_hash": post.ContentHash,
	})
	if err == nil && existing != nil {
		return Outcome{Post: post, Result: types.SkippedOutcome("already ingested: matching title+content_hash")}
	}

	items, warnings, critical := p.collectEmbeddingItems(ctx, post)
	if critical {
		return Outcome{Post: post, Result: types.FailedOutcome(types.FailureCritical, "every multimodal artifact failed"), Warnings: warnings}
	}

	if len(items) == 0 {
		return Outcome{Post: post, Result: types.SkippedOutcome("no extractable text"), Warnings: warnings}
	}

	if err := p.upload(ctx, post, items); err != nil {
		return Outcome{Post: post, Result: types.FailedOutcome(types.FailureNetwork, err.Error()), Warnings: warnings}
	}

	marker := store.Document{
		"_id":            markerID(post),
		"title":          post.Title,
		"content_hash":   post.ContentHash,
		"board_type":     string(post.BoardType),
		"canonical_url":  post.CanonicalURL,
		"date":           clock.ToISO8601(post.Date),
		"first_image":    firstOrEmpty(post.ImageURLs),
		"chunk_count":    len(items),
	}
	if err := p.docs.InsertOne(ctx, postsCollection, marker); err != nil {
		return Outcome{Post: post, Result: types.FailedOutcome(types.FailureStateStale, err.Error()), Warnings: warnings}
	}

	return Outcome{Post: post, Result: types.OKOutcome(), Warnings: warnings}
}

func markerID(post *types.Post) string {
	return post.Title + "|" + firstOrEmpty(post.ImageURLs) + "|" + post.ContentHash
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// collectEmbeddingItems chunks the post body and fans images/attachments
// out through the Multimodal Processor. critical=true means every
// multimodal artifact failed and the post should be aborted for later
// reprocessing.
func (p *Processor) collectEmbeddingItems(ctx context.Context, post *types.Post) (items []types.EmbeddingItem, warnings []string, critical bool) {
	bodyChunks := chunk.Split(post.BodyText, p.chunkSize, p.chunkOver)
	for _, c := range bodyChunks {
		items = append(items, types.EmbeddingItem{
			Text:          c.Text,
			Title:         post.Title,
			URL:           post.CanonicalURL,
			Date:          post.Date,
			ContentType:   types.ContentText,
			Source:        types.SourceOriginalPost,
			ChunkIndex:    c.Index,
			TotalChunks:   c.Total,
			HTMLAvailable: post.BodyHTML != "",
			HTML:          post.BodyHTML,
		})
	}

	totalArtifacts := len(post.ImageURLs) + len(post.AttachmentURLs)
	failedArtifacts := 0

	for _, imgURL := range post.ImageURLs {
		res := p.multimodal.ProcessImage(ctx, post.CanonicalURL, imgURL, post.Title, post.Date)
		if res.Failed {
			failedArtifacts++
			warnings = append(warnings, fmt.Sprintf("image %s: %s", imgURL, res.Reason))
			continue
		}
		items = append(items, res.Items...)
	}
	for _, attURL := range post.AttachmentURLs {
		res := p.multimodal.ProcessAttachment(ctx, post.CanonicalURL, attURL, post.Title, post.Date)
		if res.Failed {
			failedArtifacts++
			warnings = append(warnings, fmt.Sprintf("attachment %s: %s", attURL, res.Reason))
			continue
		}
		items = append(items, res.Items...)
	}

	if totalArtifacts > 0 && failedArtifacts == totalArtifacts {
		critical = true
	}
	return items, warnings, critical
}

// upload batches item texts, calls the embedding service, and upserts
// (id, vector, metadata) into the vector index with ids assigned
// sequentially starting at the current total vector count.
func (p *Processor) upload(ctx context.Context, post *types.Post, items []types.EmbeddingItem) error {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingest: embed batch for %q: %w", post.Title, err)
	}

	stats, err := p.vectors.DescribeIndexStats(ctx)
	if err != nil {
		return fmt.Errorf("ingest: describe index stats: %w", err)
	}
	nextID := stats.TotalVectorCount

	for i, it := range items {
		metadata := map[string]string{
			"title":          it.Title,
			"url":            it.URL,
			"date":           clock.ToISO8601(it.Date),
			"content_type":   string(it.ContentType),
			"source":         string(it.Source),
			"chunk_index":    fmt.Sprintf("%d", it.ChunkIndex),
			"total_chunks":   fmt.Sprintf("%d", it.TotalChunks),
			"html_available": fmt.Sprintf("%t", it.HTMLAvailable),
			"preview":        preview(it.Text, metadataPreviewLimit),
		}
		if it.ImageURL != "" {
			metadata["image_url"] = it.ImageURL
		}
		if it.AttachmentURL != "" {
			metadata["attachment_url"] = it.AttachmentURL
		}
		if it.AttachmentType != "" {
			metadata["attachment_type"] = it.AttachmentType
		}

		id := fmt.Sprintf("%d", nextID+i)
		if err := p.vectors.Upsert(ctx, id, vectors[i], metadata); err != nil {
			return fmt.Errorf("ingest: upsert vector %s: %w", id, err)
		}

		full, err := store.ToDocument(it)
		if err == nil {
			full["_id"] = id
			_ = p.docs.UpdateOne(ctx, "embedding_items", store.Document{"_id": id}, full, true)
		}
	}
	return nil
}

func preview(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
