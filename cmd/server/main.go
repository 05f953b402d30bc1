// Command server runs the question-answering HTTP API: it loads the BM25
// corpus from the document store, wires up dense retrieval, the temporal
// intent parser, the optional reranker, and the response composer behind a
// single POST /ai/ai-response endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"campusrag/internal/bm25"
	"campusrag/internal/clock"
	"campusrag/internal/compose"
	"campusrag/internal/config"
	"campusrag/internal/httpapi"
	"campusrag/internal/llm"
	"campusrag/internal/observability"
	"campusrag/internal/retrieve"
	"campusrag/internal/store"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()
	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		pterm.Warning.Printf("otel init: %v (continuing without tracing/metrics)\n", err)
		shutdownOTel = func(context.Context) error { return nil }
	}
	defer shutdownOTel(ctx)

	gw, err := store.NewGateway(ctx, cfg)
	if err != nil {
		pterm.Error.Printf("open storage gateway: %v\n", err)
		os.Exit(1)
	}
	defer gw.Close()

	pterm.Info.Println("loading BM25 corpus from the document store...")
	docs, err := loadBM25Corpus(ctx, gw.Docs)
	if err != nil {
		pterm.Error.Printf("load bm25 corpus: %v\n", err)
		os.Exit(1)
	}
	idx, err := bm25.LoadOrBuild(ctx, gw.Cache, "bm25:corpus", docs, bm25.BuildOptions{
		K1:              cfg.Retrieval.BM25K1,
		B:               cfg.Retrieval.BM25B,
		Workers:         cfg.Retrieval.BM25Workers,
		NormalizeFactor: cfg.Retrieval.BM25NormalizeFactor,
	})
	if err != nil {
		pterm.Error.Printf("build bm25 index: %v\n", err)
		os.Exit(1)
	}
	pterm.Success.Printf("BM25 index ready over %d documents\n", len(docs))

	embedder := llm.NewEmbeddingClient(cfg.Embedding)
	chat := llm.NewChatClient(cfg.Chat)
	dense := retrieve.NewDenseRetriever(embedder, gw.Vectors, cfg.Retrieval.DenseScaleFactor)
	temporal := retrieve.NewTemporalParser(chat)
	reranker := retrieve.NewConfiguredReranker(cfg.Reranker)
	if reranker == nil {
		pterm.Warning.Println("no reranker configured; retrieval degrades to pre-rerank order")
	}

	orchestrator := &retrieve.Orchestrator{
		BM25:        idx,
		Dense:       dense,
		Docs:        gw.Docs,
		Temporal:    temporal,
		Reranker:    reranker,
		TopKSearch:  cfg.Retrieval.DenseTopK,
		TopNCombine: cfg.Retrieval.TopKDocuments,
		TopNDedup:   20,
	}
	composer := compose.NewComposer(chat, cfg.Retrieval.ContextCharBudget)

	srv := httpapi.NewServer(orchestrator, composer)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	pterm.Success.Printf("listening on %s\n", addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// loadBM25Corpus reconstructs one bm25.Doc per distinct original-post title
// from the "embedding_items" metadata snapshot, joining that post's chunks
// back into a single body in chunk-index order.
func loadBM25Corpus(ctx context.Context, docs store.DocumentStore) ([]bm25.Doc, error) {
	items, err := docs.FindMany(ctx, "embedding_items", store.Document{"source": "original_post"}, 0)
	if err != nil {
		return nil, err
	}

	type byTitle struct {
		doc    bm25.Doc
		chunks []store.Document
	}
	grouped := make(map[string]*byTitle)
	order := make([]string, 0)
	for _, it := range items {
		title, _ := it["title"].(string)
		if title == "" {
			continue
		}
		g, ok := grouped[title]
		if !ok {
			g = &byTitle{}
			grouped[title] = g
			order = append(order, title)
		}
		g.chunks = append(g.chunks, it)
	}

	out := make([]bm25.Doc, 0, len(order))
	for _, title := range order {
		g := grouped[title]
		sort.Slice(g.chunks, func(i, j int) bool {
			return chunkIndexOf(g.chunks[i]) < chunkIndexOf(g.chunks[j])
		})
		var text, html, url string
		var date time.Time
		for _, c := range g.chunks {
			if t, _ := c["text"].(string); t != "" {
				if text != "" {
					text += " "
				}
				text += t
			}
			if html == "" {
				html, _ = c["html"].(string)
			}
			if url == "" {
				url, _ = c["url"].(string)
			}
			if date.IsZero() {
				if ds, _ := c["date"].(string); ds != "" {
					if t, err := clock.ParseDate(ds); err == nil {
						date = t
					}
				}
			}
		}
		out = append(out, bm25.Doc{Title: title, Text: text, HTML: html, URL: url, Date: date})
	}
	return out, nil
}

func chunkIndexOf(d store.Document) int {
	switch v := d["chunk_index"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
