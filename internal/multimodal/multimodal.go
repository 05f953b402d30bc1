// Package multimodal implements the Multimodal Processor: URL-keyed and
// content-hash-keyed caching of OCR/document-parse results, zip fan-out,
// and conversion to EmbeddingItems.
package multimodal

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"campusrag/internal/chunk"
	"campusrag/internal/clock"
	"campusrag/internal/contentapi"
	"campusrag/internal/fetch"
	"campusrag/internal/store"
	"campusrag/internal/types"
)

const cacheTTL = 30 * 24 * time.Hour

// cachedResult is the JSON shape stored under both the URL key and the
// content-hash key, so either lookup path hits the same cached extraction.
type cachedResult struct {
	Text     string `json:"text"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Source   string `json:"source"`
	Failed   bool   `json:"failed"`
	Reason   string `json:"reason,omitempty"`
}

// Processor turns image/attachment URLs into deduplicated artifacts and
// EmbeddingItems, single-flighting identical content via the cache.
type Processor struct {
	fetcher   *fetch.Fetcher
	content   *contentapi.Client
	cache     store.Cache
	chunkSize int
	chunkOver int
	zipLimits contentapi.ZipLimits
}

func NewProcessor(fetcher *fetch.Fetcher, content *contentapi.Client, cache store.Cache, chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		fetcher:   fetcher,
		content:   content,
		cache:     cache,
		chunkSize: chunkSize,
		chunkOver: chunkOverlap,
		zipLimits: contentapi.DefaultZipLimits(),
	}
}

// ProcessResult bundles the embedding items produced for one artifact URL
// and whether extraction failed.
type ProcessResult struct {
	URL    string
	Items  []types.EmbeddingItem
	Failed bool
	Reason string
}

// ProcessImage runs one image URL through the cache → fetch → OCR →
// chunk pipeline.
func (p *Processor) ProcessImage(ctx context.Context, parentPostURL, imageURL, postTitle string, postDate time.Time) ProcessResult {
	return p.process(ctx, parentPostURL, imageURL, postTitle, postDate, types.ContentImage, types.SourceImageOCR)
}

// ProcessAttachment runs one attachment/document URL (or zip) through the
// same pipeline, fanning out zip members.
func (p *Processor) ProcessAttachment(ctx context.Context, parentPostURL, attachmentURL, postTitle string, postDate time.Time) ProcessResult {
	if strings.HasSuffix(strings.ToLower(path.Ext(attachmentURL)), ".zip") {
		return p.processZip(ctx, parentPostURL, attachmentURL, postTitle, postDate)
	}
	return p.process(ctx, parentPostURL, attachmentURL, postTitle, postDate, types.ContentAttachment, types.SourceDocumentParse)
}

func urlCacheKey(u string) string     { return "mm:url:" + u }
func hashCacheKey(hash string) string { return "mm:hash:" + hash }

func (p *Processor) process(ctx context.Context, parentURL, artifactURL, postTitle string, postDate time.Time, contentType types.ContentType, source types.SourceKind) ProcessResult {
	// Step 1: URL-keyed cache.
	if raw, ok, err := p.cache.Get(ctx, urlCacheKey(artifactURL)); err == nil && ok {
		var cached cachedResult
		if json.Unmarshal(raw, &cached) == nil && cached.Text != "" {
			return ProcessResult{URL: artifactURL, Items: p.toItems(cached, artifactURL, postTitle, postDate, contentType, source)}
		}
	}

	// Step 2: fetch bytes, compute content hash.
	fetched, err := p.fetcher.Fetch(ctx, artifactURL)
	if err != nil {
		return ProcessResult{URL: artifactURL, Failed: true, Reason: err.Error()}
	}
	fileHash := clock.HashBytes(fetched.Bytes)

	// Step 3: content-hash-keyed cache.
	if raw, ok, err := p.cache.Get(ctx, hashCacheKey(fileHash)); err == nil && ok {
		var cached cachedResult
		if json.Unmarshal(raw, &cached) == nil {
			p.cacheSet(ctx, urlCacheKey(artifactURL), cached)
			return ProcessResult{URL: artifactURL, Items: p.toItems(cached, artifactURL, postTitle, postDate, contentType, source)}
		}
	}

	// Step 4: route by extension.
	filename := fetched.Filename
	if filename == "" {
		filename = path.Base(artifactURL)
	}
	if _, ok := contentapi.IsSupported(filename); !ok {
		result := cachedResult{Failed: true, Reason: "unsupported file kind", Source: string(source)}
		p.cacheSet(ctx, urlCacheKey(artifactURL), result)
		p.cacheSet(ctx, hashCacheKey(fileHash), result)
		return ProcessResult{URL: artifactURL, Failed: true, Reason: result.Reason}
	}

	extraction, err := p.content.Extract(ctx, fetched.Bytes, filename)
	if err != nil {
		result := cachedResult{Failed: true, Reason: err.Error(), Source: string(source)}
		p.cacheSet(ctx, hashCacheKey(fileHash), result)
		return ProcessResult{URL: artifactURL, Failed: true, Reason: err.Error()}
	}

	result := cachedResult{
		Text:     extraction.BestText(),
		Markdown: extraction.Markdown,
		HTML:     extraction.HTML,
		Source:   string(source),
	}

	// Step 5: store under both keys.
	p.cacheSet(ctx, urlCacheKey(artifactURL), result)
	p.cacheSet(ctx, hashCacheKey(fileHash), result)

	return ProcessResult{URL: artifactURL, Items: p.toItems(result, artifactURL, postTitle, postDate, contentType, source)}
}

// processZip fans out to extract_zip and recurses per member, suffixing
// each member's synthetic URL with "#<member_filename>".
func (p *Processor) processZip(ctx context.Context, parentURL, zipURL, postTitle string, postDate time.Time) ProcessResult {
	fetched, err := p.fetcher.Fetch(ctx, zipURL)
	if err != nil {
		return ProcessResult{URL: zipURL, Failed: true, Reason: err.Error()}
	}

	zipResult, err := p.content.ExtractZip(ctx, fetched.Bytes, p.zipLimits)
	if err != nil {
		return ProcessResult{URL: zipURL, Failed: true, Reason: err.Error()}
	}

	var items []types.EmbeddingItem
	for _, member := range zipResult.Successful {
		memberURL := fmt.Sprintf("%s#%s", zipURL, member.Filename)
		result := cachedResult{
			Text:     member.Extraction.BestText(),
			Markdown: member.Extraction.Markdown,
			Source:   string(types.SourceDocumentParse),
		}
		p.cacheSet(ctx, urlCacheKey(memberURL), result)
		items = append(items, p.toItems(result, memberURL, postTitle, postDate, types.ContentAttachment, types.SourceDocumentParse)...)
	}

	if len(items) == 0 && len(zipResult.Successful) == 0 {
		return ProcessResult{URL: zipURL, Failed: true, Reason: "all zip members unsupported or failed"}
	}
	return ProcessResult{URL: zipURL, Items: items}
}

func (p *Processor) cacheSet(ctx context.Context, key string, result cachedResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = p.cache.SetEX(ctx, key, raw, cacheTTL)
}

// toItems chunks the extracted text: HTML/markdown is stored alongside
// metadata but never itself chunked; only the flat text is split by the
// character chunker.
func (p *Processor) toItems(result cachedResult, artifactURL, postTitle string, postDate time.Time, contentType types.ContentType, source types.SourceKind) []types.EmbeddingItem {
	if result.Failed || result.Text == "" {
		return nil
	}
	chunks := chunk.Split(result.Text, p.chunkSize, p.chunkOver)
	items := make([]types.EmbeddingItem, 0, len(chunks))
	for _, c := range chunks {
		item := types.EmbeddingItem{
			Text:          c.Text,
			Title:         postTitle,
			Date:          postDate,
			ContentType:   contentType,
			Source:        source,
			ChunkIndex:    c.Index,
			TotalChunks:   c.Total,
			HTMLAvailable: result.HTML != "" || result.Markdown != "",
			HTML:          result.HTML,
			Markdown:      result.Markdown,
		}
		if contentType == types.ContentImage {
			item.ImageURL = artifactURL
		} else {
			item.AttachmentURL = artifactURL
			item.AttachmentType = strings.TrimPrefix(path.Ext(strings.SplitN(artifactURL, "#", 2)[0]), ".")
		}
		items = append(items, item)
	}
	return items
}
