// Package crawl implements the board crawlers: a shared base crawler
// (HTTP with retry, selector-driven extraction) parameterized per board
// by config.BoardConfig, plus the Crawl State Manager.
package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campusrag/internal/clock"
	"campusrag/internal/config"
	"campusrag/internal/types"
	"campusrag/internal/workerpool"

	"github.com/PuerkitoBio/goquery"
)

// Crawler extracts posts from one board, using its config-driven selectors.
type Crawler struct {
	board  config.BoardConfig
	client *http.Client
	clk    clock.Clock
}

func New(board config.BoardConfig, client *http.Client, clk clock.Clock) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Crawler{board: board, client: client, clk: clk}
}

// Enumerate builds the list of post URLs for an inclusive id range
// [lowID, highID]. Board URL shape is root_url?wr_id=<id>, the common
// pattern across the department's boards (grammar boards).
func (c *Crawler) Enumerate(lowID, highID int) []string {
	if lowID > highID {
		lowID, highID = highID, lowID
	}
	urls := make([]string, 0, highID-lowID+1)
	for id := lowID; id <= highID; id++ {
		urls = append(urls, fmt.Sprintf("%s?wr_id=%d", c.board.RootURL, id))
	}
	return urls
}

// GetLatestID scans the board landing page for the highest post id it
// links to. Returns false if no id could be discovered.
func (c *Crawler) GetLatestID(ctx context.Context) (int, bool, error) {
	doc, err := c.fetchDocument(ctx, c.board.RootURL)
	if err != nil {
		return 0, false, err
	}
	best := 0
	found := false
	doc.Find("a[href*='wr_id=']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		idStr := u.Query().Get("wr_id")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return
		}
		if id > best {
			best = id
			found = true
		}
	})
	return best, found, nil
}

// ExtractFromURL fetches one post page and extracts a types.Post using the
// board's configured selectors. Returns (nil, nil) if the title cannot be
// extracted, which the caller treats as a silently dropped post.
func (c *Crawler) ExtractFromURL(ctx context.Context, postURL string) (*types.Post, error) {
	doc, err := c.fetchDocument(ctx, postURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(c.board.TitleSelector).First().Text())
	if title == "" {
		return nil, nil
	}

	bodySel := doc.Find(c.board.BodySelector).First()
	bodyHTML, _ := bodySel.Html()
	bodyText := strings.TrimSpace(bodySel.Text())

	date := c.extractDate(doc)

	post := &types.Post{
		BoardType:    types.BoardType(c.board.Type),
		Title:        title,
		BodyText:     bodyText,
		BodyHTML:     bodyHTML,
		Date:         date,
		CanonicalURL: postURL,
	}

	if c.board.ImageSelector != "" {
		doc.Find(c.board.ImageSelector).Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && src != "" {
				post.ImageURLs = append(post.ImageURLs, resolveRelative(postURL, src))
			}
		})
	}
	if c.board.AttachSelector != "" {
		doc.Find(c.board.AttachSelector).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok && href != "" {
				post.AttachmentURLs = append(post.AttachmentURLs, resolveRelative(postURL, href))
			}
		})
	}

	post.ContentHash = clock.StablePostHash(post.Title, post.BodyText)
	return post, nil
}

// extractDate reads the board's date selector, falling back to the
// configured fixed baseline (used for faculty/staff directory entries,
// which carry no post date of their own).
func (c *Crawler) extractDate(doc *goquery.Document) time.Time {
	if c.board.DateSelector != "" {
		raw := strings.TrimSpace(doc.Find(c.board.DateSelector).First().Text())
		if raw != "" {
			if t, err := clock.ParseDate(raw); err == nil {
				return t
			}
		}
	}
	if c.board.FixedBaselineAt != "" {
		if t, err := clock.ParseDate(c.board.FixedBaselineAt); err == nil {
			return t
		}
	}
	return c.clk.Now()
}

func (c *Crawler) fetchDocument(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("crawl: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("crawl: fetch %s: status %d", target, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func resolveRelative(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// CrawlBoard runs ExtractFromURL across urls using a bounded worker pool
// (default 3), retrying each URL up to maxRetries times on error before
// omitting it.
func CrawlBoard(ctx context.Context, crawler *Crawler, urls []string, workers, maxRetries int, retryDelay time.Duration) []*types.Post {
	if workers <= 0 {
		workers = 3
	}
	batch := workerpool.BatchSize(len(urls), workers)
	results := workerpool.Run(ctx, urls, workers, batch, func(ctx context.Context, postURL string) (*types.Post, error) {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(retryDelay * time.Duration(attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			post, err := crawler.ExtractFromURL(ctx, postURL)
			if err == nil {
				return post, nil
			}
			lastErr = err
		}
		return nil, lastErr
	})

	posts := make([]*types.Post, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Value == nil {
			continue
		}
		posts = append(posts, r.Value)
	}
	return posts
}
