package retrieve

import (
	"context"
	"sort"
	"strings"
	"time"

	"campusrag/internal/bm25"
	"campusrag/internal/clock"
	"campusrag/internal/recency"
	"campusrag/internal/store"
	"campusrag/internal/types"

	"golang.org/x/sync/errgroup"
)

const embeddingItemsCollection = "embedding_items"

// scoreFloor values used by the extreme-low-score guard.
const (
	scoreFloorBGE          = -8.0
	scoreFloorInitialSearch = 0.5
)

// Orchestrator drives the per-query retrieval state machine.
type Orchestrator struct {
	BM25       *bm25.Index
	Dense      *DenseRetriever
	Docs       store.DocumentStore
	Temporal   *TemporalParser
	Reranker   Reranker // nil means degrade to pre-rerank order
	TopKSearch int
	TopNCombine int
	TopNDedup  int
}

// Outcome is the orchestrator's terminal result: either an ordered list of
// enriched chunks with a top title for image references, or a "no answer"
// short-circuit, or the list-shortcut path.
type Outcome struct {
	Chunks       []types.Candidate
	TopTitle     string
	TopURL       string
	NoAnswer     bool
	ListShortcut bool
	Intent       types.TemporalIntent
}

// listShortcutTokens are the closed-set phrases that trigger the metadata
// snapshot scan instead of the full retrieval pipeline.
var listShortcutTokens = []string{"최근", "recent", "latest"}

// Run executes the full state machine for one query.
func (o *Orchestrator) Run(ctx context.Context, question string, queryNouns []string, now time.Time) Outcome {
	intent := types.TemporalIntent{}
	if o.Temporal != nil {
		intent = o.Temporal.Parse(ctx, question, now)
	}

	if category, ok := listShortcutCategory(question, queryNouns); ok {
		chunks := o.listShortcut(ctx, category)
		topURL := ""
		if len(chunks) > 0 {
			topURL = chunks[0].URL
		}
		return Outcome{Chunks: chunks, ListShortcut: true, Intent: intent, TopURL: topURL}
	}

	topK := o.TopKSearch
	if topK <= 0 {
		topK = 50
	}

	var bmResults []bm25.Result
	var dense []types.Candidate
	var g errgroup.Group
	g.Go(func() error {
		if o.BM25 != nil {
			bmResults, _ = o.BM25.Search(queryNouns, topK)
		}
		return nil
	})
	g.Go(func() error {
		if o.Dense != nil {
			dense, _ = o.Dense.Search(ctx, question, queryNouns, topK)
		}
		return nil
	})
	_ = g.Wait()

	topN := o.TopNCombine
	if topN <= 0 {
		topN = 30
	}
	combined := Combine(dense, bmResults, queryNouns, now, topN)

	for i := range combined {
		combined[i].Score *= recency.CoarseBoost(combined[i].Date, now)
	}
	sortCandidatesDesc(combined)

	dedupN := o.TopNDedup
	if dedupN <= 0 {
		dedupN = 20
	}
	deduped := dedupeByURL(combined, dedupN)

	reranked := deduped
	didRerank := false
	if o.Reranker != nil {
		if r, err := o.Reranker.Rerank(ctx, question, deduped, len(deduped)); err == nil {
			reranked = r
			didRerank = true
		}
	}

	if didRerank && intent.HasFilter() {
		reranked = temporalReboost(reranked, intent, now)
	}

	if len(reranked) == 0 {
		return Outcome{NoAnswer: true, Intent: intent}
	}
	floor := scoreFloorInitialSearch
	if didRerank {
		floor = scoreFloorBGE
	}
	if reranked[0].Score < floor {
		return Outcome{NoAnswer: true, Intent: intent}
	}

	titles := distinctTitles(reranked, 5)
	chunks := o.enrichChunks(ctx, titles)

	top := ""
	if len(titles) > 0 {
		top = titles[0]
	}
	return Outcome{Chunks: chunks, TopTitle: top, TopURL: reranked[0].URL, Intent: intent}
}

func listShortcutCategory(question string, queryNouns []string) (string, bool) {
	lower := strings.ToLower(question)
	hasRecent := false
	for _, t := range listShortcutTokens {
		if strings.Contains(lower, t) {
			hasRecent = true
			break
		}
	}
	if !hasRecent {
		return "", false
	}
	// A "list recent X" request needs a category token alongside "recent"
	// and little else; with no morphological analyser available we treat
	// any remaining noun as the category.
	for _, n := range queryNouns {
		found := false
		for _, t := range listShortcutTokens {
			if n == t {
				found = true
				break
			}
		}
		if !found {
			return n, true
		}
	}
	return "", false
}

// listShortcut scans the cached metadata snapshot for items whose URL
// contains the category token, bypassing BM25/dense/rerank entirely.
func (o *Orchestrator) listShortcut(ctx context.Context, category string) []types.Candidate {
	if o.Docs == nil {
		return nil
	}
	items, err := o.Docs.FindMany(ctx, embeddingItemsCollection, store.Document{}, 0)
	if err != nil {
		return nil
	}
	var out []types.Candidate
	for _, it := range items {
		url, _ := it["url"].(string)
		if !strings.Contains(strings.ToLower(url), strings.ToLower(category)) {
			continue
		}
		out = append(out, candidateFromEmbeddingDoc(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func candidateFromEmbeddingDoc(d store.Document) types.Candidate {
	c := types.Candidate{
		Title:          strOr(d, "title"),
		URL:            strOr(d, "url"),
		Text:           strOr(d, "text"),
		HTML:           strOr(d, "html"),
		Markdown:       strOr(d, "markdown"),
		ContentType:    types.ContentType(strOr(d, "content_type")),
		Source:         types.SourceKind(strOr(d, "source")),
		ImageURL:       strOr(d, "image_url"),
		AttachmentURL:  strOr(d, "attachment_url"),
		AttachmentType: strOr(d, "attachment_type"),
	}
	if dateStr := strOr(d, "date"); dateStr != "" {
		if t, err := clock.ParseDate(dateStr); err == nil {
			c.Date = t
		}
	}
	return c
}

func strOr(d store.Document, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// dedupeByURL keeps at most one entry per canonical URL (the higher score
// wins on collision) and cuts to limit.
func dedupeByURL(cands []types.Candidate, limit int) []types.Candidate {
	best := make(map[string]types.Candidate, len(cands))
	order := make([]string, 0, len(cands))
	for _, c := range cands {
		key := c.URL
		if existing, ok := best[key]; !ok || c.Score > existing.Score {
			if !ok {
				order = append(order, key)
			}
			best[key] = c
		}
	}
	out := make([]types.Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sortCandidatesDesc(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// temporalReboost rescales candidates by how well their date matches the
// parsed temporal intent: exact year+semester match gets x2.0, year-only
// x1.8, semester-only x1.5, and ongoing-mode applies
// x1.8 for current-semester documents or x0.6 for documents >=2 years old.
func temporalReboost(cands []types.Candidate, intent types.TemporalIntent, now time.Time) []types.Candidate {
	curYear, curSemester := CurrentSemester(now)
	for i := range cands {
		docYear, docSemester := CurrentSemester(cands[i].Date)
		switch {
		case intent.Year != 0 && intent.Semester != 0 && docYear == intent.Year && docSemester == intent.Semester:
			cands[i].Score *= 2.0
		case intent.Year != 0 && intent.Semester == 0 && docYear == intent.Year:
			cands[i].Score *= 1.8
		case intent.Year == 0 && intent.Semester != 0 && docSemester == intent.Semester:
			cands[i].Score *= 1.5
		case intent.IsOngoing && docYear == curYear && docSemester == curSemester:
			cands[i].Score *= 1.8
		case intent.IsOngoing && clock.DaysBetween(cands[i].Date, now) >= 730:
			cands[i].Score *= 0.6
		}
	}
	sortCandidatesDesc(cands)
	return cands
}

// distinctTitles walks cands and picks the first n distinct titles, in
// order.
func distinctTitles(cands []types.Candidate, n int) []string {
	seen := make(map[string]bool, n)
	var out []string
	for _, c := range cands {
		if seen[c.Title] {
			continue
		}
		seen[c.Title] = true
		out = append(out, c.Title)
		if len(out) >= n {
			break
		}
	}
	return out
}

// enrichChunks pulls every chunk from the metadata snapshot whose title
// matches one of titles, globally deduplicating by whitespace-normalised
// text.
func (o *Orchestrator) enrichChunks(ctx context.Context, titles []string) []types.Candidate {
	if o.Docs == nil {
		return nil
	}
	seenText := make(map[string]bool)
	var out []types.Candidate
	for _, title := range titles {
		docs, err := o.Docs.FindMany(ctx, embeddingItemsCollection, store.Document{"title": title}, 0)
		if err != nil {
			continue
		}
		for _, d := range docs {
			c := candidateFromEmbeddingDoc(d)
			key := normalizeWhitespace(c.Text)
			if key == "" || seenText[key] {
				continue
			}
			seenText[key] = true
			out = append(out, c)
		}
	}
	return out
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
