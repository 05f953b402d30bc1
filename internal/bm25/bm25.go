package bm25

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"campusrag/internal/store"
	"campusrag/internal/workerpool"
)

// Doc is one indexable document: a crawled Post's title+body+html surface.
type Doc struct {
	Title string
	Text  string
	HTML  string
	URL   string
	Date  time.Time
}

// KeywordSets parameterises the similarity adjuster's domain-specific
// bonuses so they are not buried as magic string literals in the scoring
// code (mirrors adjust_similarity_scores's '국가장학금'/'대학원' special
// cases).
type KeywordSets struct {
	NoContentMarker    string   // text value meaning "nothing extracted"
	NoContentBoostWord string   // query+title co-occurrence that multiplies harder
	GraduateWords      []string // e.g. "대학원"/"대학원생"
}

// DefaultKeywords mirrors the keyword groups the source similarity adjuster
// special-cases.
var DefaultKeywords = KeywordSets{
	NoContentMarker:    "No content",
	NoContentBoostWord: "국가장학금",
	GraduateWords:      []string{"대학원", "대학원생"},
}

const (
	// DefaultK1 and DefaultB are the standard Okapi BM25 tuning constants.
	DefaultK1 = 1.5
	DefaultB  = 0.75
	// DefaultNormalizeFactor is the application-level score divisor applied
	// before the similarity adjuster runs.
	DefaultNormalizeFactor = 24.0
	// CacheTTL is the persistence lifetime for the tokenized corpus cache.
	CacheTTL = 24 * time.Hour
)

var digitPattern = regexp.MustCompile(`\d`)

// Index is an in-memory Okapi BM25 index over a fixed document set, built
// once per corpus snapshot and rebuilt whenever doc_count changes.
type Index struct {
	docs      []Doc
	tokenized [][]string
	df        map[string]int // document frequency per term
	avgdl     float64
	k1, b     float64
	normalize float64
	keywords  KeywordSets
}

// BuildOptions tunes construction: worker/batch sizing for the parallel
// tokenization pass and the scoring constants.
type BuildOptions struct {
	Workers         int
	BatchSize       int
	K1, B           float64
	NormalizeFactor float64
	Keywords        KeywordSets
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.K1 == 0 {
		o.K1 = DefaultK1
	}
	if o.B == 0 {
		o.B = DefaultB
	}
	if o.NormalizeFactor == 0 {
		o.NormalizeFactor = DefaultNormalizeFactor
	}
	if o.Keywords.NoContentMarker == "" {
		o.Keywords = DefaultKeywords
	}
	return o
}

// Build tokenizes every doc's combined surface (title+body+parsed-html) in
// parallel and constructs the BM25 statistics. This is the dominant cost on
// cold builds.
func Build(ctx context.Context, docs []Doc, opts BuildOptions) *Index {
	opts = opts.withDefaults()
	workers := workerpool.SafeCPUCount(opts.Workers)
	batch := opts.BatchSize
	if batch <= 0 {
		batch = workerpool.BatchSize(len(docs), workers)
	}

	results := workerpool.Run(ctx, docs, workers, batch, func(_ context.Context, d Doc) ([]string, error) {
		combined := strings.TrimSpace(d.Title + " " + d.Text + " " + parseHTMLToText(d.HTML))
		return Nouns(combined), nil
	})

	tokenized := make([][]string, len(docs))
	totalLen := 0
	df := make(map[string]int)
	for i, r := range results {
		tokenized[i] = r.Value
		totalLen += len(r.Value)
		for term := range uniqueTerms(r.Value) {
			df[term]++
		}
	}
	avgdl := 0.0
	if len(docs) > 0 {
		avgdl = float64(totalLen) / float64(len(docs))
	}

	return &Index{
		docs:      docs,
		tokenized: tokenized,
		df:        df,
		avgdl:     avgdl,
		k1:        opts.K1,
		b:         opts.B,
		normalize: opts.NormalizeFactor,
		keywords:  opts.Keywords,
	}
}

// DocAt returns the document stored at a given BM25-internal index,
// letting callers translate indices returned out-of-band (e.g. from the
// full adjusted-similarity array Search also returns).
func (idx *Index) DocAt(i int) Doc { return idx.docs[i] }

func uniqueTerms(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// parseHTMLToText returns markdown pass-through when the snippet already
// looks like a markdown table (contains a pipe plus a rule or newline), and
// a crude tag-stripped form otherwise. Mirrors _parse_html_to_text.
func parseHTMLToText(htmlOrMarkdown string) string {
	if htmlOrMarkdown == "" {
		return ""
	}
	if strings.Contains(htmlOrMarkdown, "|") && (strings.Contains(htmlOrMarkdown, "---") || strings.Contains(htmlOrMarkdown, "\n")) {
		return htmlOrMarkdown
	}
	var b strings.Builder
	inTag := false
	for _, r := range htmlOrMarkdown {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// idf is the Okapi BM25 inverse document frequency term, floored at zero
// rather than allowed to go negative for very common terms.
func (idx *Index) idf(term string) float64 {
	n := float64(len(idx.docs))
	nq := float64(idx.df[term])
	v := math.Log((n-nq+0.5)/(nq+0.5) + 1)
	if v < 0 {
		v = 0
	}
	return v
}

// scores computes the raw Okapi BM25 score for every document against the
// given query terms.
func (idx *Index) scores(queryTerms []string) []float64 {
	out := make([]float64, len(idx.docs))
	for i, terms := range idx.tokenized {
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		dl := float64(len(terms))
		var score float64
		for _, q := range queryTerms {
			f := float64(freq[q])
			if f == 0 {
				continue
			}
			num := f * (idx.k1 + 1)
			den := f + idx.k1*(1-idx.b+idx.b*dl/idx.avgdl)
			score += idx.idf(q) * num / den
		}
		out[i] = score
	}
	return out
}

// Result is one scored document plus its adjusted similarity.
type Result struct {
	Doc        Doc
	Similarity float64
}

// Search scores, normalizes, adjusts, and returns the top-k documents
// descending by adjusted similarity alongside the full adjusted-similarity
// array (the Result Combiner needs the latter to fold in BM25-only hits).
func (idx *Index) Search(queryNouns []string, topK int) ([]Result, []float64) {
	raw := idx.scores(queryNouns)
	adjusted := make([]float64, len(raw))
	for i, s := range raw {
		adjusted[i] = s / idx.normalize
	}
	idx.adjustSimilarities(queryNouns, adjusted)

	order := make([]int, len(adjusted))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return adjusted[order[a]] > adjusted[order[b]] })
	if topK > 0 && topK < len(order) {
		order = order[:topK]
	}

	results := make([]Result, len(order))
	for i, idxPos := range order {
		results[i] = Result{Doc: idx.docs[idxPos], Similarity: adjusted[idxPos]}
	}
	return results, adjusted
}

// adjustSimilarities implements adjust_similarity_scores: title-token
// overlap boosts, digit-bearing-token bonuses, "no content" boosting, and
// the graduate-school special case.
func (idx *Index) adjustSimilarities(queryNouns []string, similarities []float64) {
	querySet := make(map[string]struct{}, len(queryNouns))
	for _, n := range queryNouns {
		querySet[n] = struct{}{}
	}
	queryWantsGraduate := false
	for _, g := range idx.keywords.GraduateWords {
		if _, ok := querySet[g]; ok {
			queryWantsGraduate = true
			break
		}
	}
	queryWantsNoContentBoost := false
	if idx.keywords.NoContentBoostWord != "" {
		_, queryWantsNoContentBoost = querySet[idx.keywords.NoContentBoostWord]
	}

	for i, d := range idx.docs {
		titleTokens := make(map[string]struct{})
		for _, t := range strings.Fields(d.Title) {
			titleTokens[t] = struct{}{}
		}

		if strings.TrimSpace(d.Text) == idx.keywords.NoContentMarker {
			similarities[i] *= 1.5
			if _, titleHas := titleTokens[idx.keywords.NoContentBoostWord]; queryWantsNoContentBoost && titleHas {
				similarities[i] *= 5.0
			}
		}

		for noun := range querySet {
			if _, ok := titleTokens[noun]; !ok {
				continue
			}
			similarities[i] += float64(len([]rune(noun))) * 0.21
			if digitPattern.MatchString(noun) {
				similarities[i] += float64(len([]rune(noun))) * 0.22
			}
		}

		titleHasGraduate := false
		for _, g := range idx.keywords.GraduateWords {
			if _, ok := titleTokens[g]; ok {
				titleHasGraduate = true
				break
			}
		}
		if queryWantsGraduate && titleHasGraduate {
			similarities[i] += 2.0
		}
		if !queryWantsGraduate {
			if _, ok := titleTokens[primaryGraduateWord(idx.keywords)]; ok {
				similarities[i] -= 2.0
			}
		}
	}
}

// primaryGraduateWord is the single "base form" checked for the title-only
// penalty branch (adjust_similarity_scores only penalises the bare
// '대학원' title token, not its '대학원생' variant).
func primaryGraduateWord(kw KeywordSets) string {
	if len(kw.GraduateWords) == 0 {
		return ""
	}
	return kw.GraduateWords[0]
}

// cachePayload is the persisted shape: tokenized corpus plus doc_count, used
// to validate cache freshness on startup.
type cachePayload struct {
	Tokenized [][]string `json:"tokenized"`
	DocCount  int        `json:"doc_count"`
}

// LoadOrBuild checks the cache for a tokenization matching the current
// corpus size; on a miss it tokenizes fresh and rewrites the cache.
func LoadOrBuild(ctx context.Context, cache store.Cache, cacheKey string, docs []Doc, opts BuildOptions) (*Index, error) {
	opts = opts.withDefaults()

	if raw, ok, err := cache.Get(ctx, cacheKey); err == nil && ok {
		var payload cachePayload
		if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil && payload.DocCount == len(docs) {
			return fromCachedTokens(docs, payload.Tokenized, opts), nil
		}
	}

	idx := Build(ctx, docs, opts)
	payload := cachePayload{Tokenized: idx.tokenized, DocCount: len(docs)}
	if raw, err := json.Marshal(payload); err == nil {
		_ = cache.SetEX(ctx, cacheKey, raw, CacheTTL)
	}
	return idx, nil
}

func fromCachedTokens(docs []Doc, tokenized [][]string, opts BuildOptions) *Index {
	totalLen := 0
	df := make(map[string]int)
	for _, toks := range tokenized {
		totalLen += len(toks)
		for term := range uniqueTerms(toks) {
			df[term]++
		}
	}
	avgdl := 0.0
	if len(docs) > 0 {
		avgdl = float64(totalLen) / float64(len(docs))
	}
	return &Index{
		docs:      docs,
		tokenized: tokenized,
		df:        df,
		avgdl:     avgdl,
		k1:        opts.K1,
		b:         opts.B,
		normalize: opts.NormalizeFactor,
		keywords:  opts.Keywords,
	}
}
