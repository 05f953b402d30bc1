// Command ingest runs one batch crawl-and-ingest pass across every
// configured board: discover new post ids since the last run, fetch and
// parse each post, fan its images/attachments through the Multimodal
// Processor, and upload the resulting chunks to the vector index.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"campusrag/internal/clock"
	"campusrag/internal/config"
	"campusrag/internal/contentapi"
	"campusrag/internal/crawl"
	"campusrag/internal/fetch"
	"campusrag/internal/ingest"
	"campusrag/internal/llm"
	"campusrag/internal/multimodal"
	"campusrag/internal/observability"
	"campusrag/internal/store"
	"campusrag/internal/types"

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

	if len(cfg.Ingestion.Boards) == 0 {
		pterm.Warning.Println("no boards configured (set BOARDS_CONFIG_PATH); nothing to crawl")
		return
	}

	embedder := llm.NewEmbeddingClient(cfg.Embedding)
	contentClient := contentapi.NewClient(cfg.ContentAPI.BaseURL, cfg.ContentAPI.APIKey, cfg.ContentAPI.Model, cfg.ContentAPI.Timeout)
	fetcher := fetch.New(30*time.Second, cfg.Ingestion.MaxRetries, cfg.Ingestion.RetryDelay)
	mm := multimodal.NewProcessor(fetcher, contentClient, gw.Cache, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	processor := ingest.NewProcessor(gw.Docs, gw.Vectors, embedder, mm, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap, log.Logger)
	state := crawl.NewStateManager(gw.Docs)
	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})

	pterm.DefaultSection.Println("campusrag ingest")
	tableData := pterm.TableData{{"board", "range", "fetched", "ingested", "skipped", "failed"}}

	for _, board := range cfg.Ingestion.Boards {
		boardType := types.BoardType(board.Type)
		crawler := crawl.New(board, httpClient, clock.SystemClock{})

		latestID, ok, err := crawler.GetLatestID(ctx)
		if err != nil {
			pterm.Warning.Printf("%s: discover latest id: %v\n", board.Type, err)
			continue
		}
		if !ok {
			pterm.Warning.Printf("%s: could not discover a latest post id, skipping\n", board.Type)
			continue
		}

		rng, ok, err := state.GetCrawlRange(ctx, boardType, latestID, board.IDFloor)
		if err != nil {
			pterm.Warning.Printf("%s: compute crawl range: %v\n", board.Type, err)
			continue
		}
		if !ok {
			tableData = append(tableData, []string{board.Type, "up to date", "0", "0", "0", "0"})
			continue
		}

		urls := crawler.Enumerate(rng[0], rng[1])
		pterm.Info.Printf("%s: crawling ids %d..%d (%d urls)\n", board.Type, rng[0], rng[1], len(urls))

		posts := crawl.CrawlBoard(ctx, crawler, urls, cfg.Ingestion.MaxWorkers, cfg.Ingestion.MaxRetries, cfg.Ingestion.RetryDelay)

		ingested, skipped, failed := 0, 0, 0
		maxID := rng[0]
		if rng[1] > maxID {
			maxID = rng[1]
		}
		for _, post := range posts {
			outcome := processor.IngestPost(ctx, post)
			switch outcome.Result.Kind {
			case types.OK:
				ingested++
			case types.Skipped:
				skipped++
			case types.Failed:
				failed++
				log.Error().Str("board", board.Type).Str("title", post.Title).Str("detail", outcome.Result.Detail).Msg("ingest failed")
			}
			for _, w := range outcome.Warnings {
				log.Warn().Str("board", board.Type).Str("title", post.Title).Msg(w)
			}
		}

		if err := state.UpdateLastProcessedID(ctx, boardType, maxID, ingested); err != nil {
			pterm.Warning.Printf("%s: update crawl state: %v\n", board.Type, err)
		}

		tableData = append(tableData, []string{
			board.Type,
			fmt.Sprintf("%d..%d", rng[0], rng[1]),
			fmt.Sprintf("%d", len(posts)),
			fmt.Sprintf("%d", ingested),
			fmt.Sprintf("%d", skipped),
			fmt.Sprintf("%d", failed),
		})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	pterm.Success.Println("ingest run complete")
}
